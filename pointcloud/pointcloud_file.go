package pointcloud

import (
	"bufio"
	"encoding/binary"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/cloudquery/spatialmath"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// NewFromFile returns the points read in from the given file.
func NewFromFile(fn string, logger golog.Logger) ([]Point, error) {
	switch filepath.Ext(fn) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		return NewFromPCDFile(fn)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromLASFile returns the points of a LAS file. RGB is only read for point format 2;
// all other points are white and opaque.
func NewFromLASFile(fn string, logger golog.Logger) ([]Point, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, errors.Wrapf(err, "opening LAS file %q", fn)
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	points := make([]Point, 0, lf.Header.NumberPoints)
	hasColor := lf.Header.PointFormatID == 2
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading LAS point %d", i)
		}
		data := p.PointData()

		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if hasColor && p.RgbData() != nil {
			c.R = uint8(p.RgbData().Red / 256)
			c.G = uint8(p.RgbData().Green / 256)
			c.B = uint8(p.RgbData().Blue / 256)
		}
		points = append(points, NewPointWithIntensity(
			r3.Vector{X: data.X, Y: data.Y, Z: data.Z},
			c,
			float32(data.Intensity),
		))
	}
	logger.Debugw("read LAS file", "file", fn, "points", len(points), "point_format", lf.Header.PointFormatID)
	return points, nil
}

// WriteToLASFile writes points out to a LAS file using point format 2. Intensity is clamped to
// the uint16 range of a LAS record and points without intensity are written with zero.
func WriteToLASFile(points []Point, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return errors.Wrapf(err, "creating LAS file %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	if err := lf.AddHeader(lidario.LasHeader{PointFormatID: 2}); err != nil {
		return err
	}
	for i, p := range points {
		pr0 := &lidario.PointRecord0{
			X: p.Position.X,
			Y: p.Position.Y,
			Z: p.Position.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			PointSourceID: 1,
		}
		if p.HasIntensity {
			pr0.Intensity = lasIntensity(p.Intensity)
		}
		lp := &lidario.PointRecord2{
			PointRecord0: pr0,
			RGB: &lidario.RgbData{
				Red:   uint16(p.Color.R) * 256,
				Green: uint16(p.Color.G) * 256,
				Blue:  uint16(p.Color.B) * 256,
			},
		}
		if err := lf.AddLasPoint(lp); err != nil {
			return errors.Wrapf(err, "writing LAS point %d", i)
		}
	}
	return nil
}

func lasIntensity(v float32) uint16 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(math.Round(float64(v)))
	}
}

// NewFromPCDFile returns the points of a PCD file.
func NewFromPCDFile(fn string) (points []Point, err error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ReadPCD(f)
}

type pcdField int

const (
	pcdFieldX = pcdField(iota)
	pcdFieldY
	pcdFieldZ
	pcdFieldRGB
	pcdFieldIntensity
)

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields    []pcdField
	size      []uint64
	valTypes  []pcdValType
	count     []uint64
	width     uint64
	height    uint64
	viewpoint spatialmath.Pose
	points    uint64
	data      PCDType
}

func (h *pcdHeader) has(field pcdField) bool {
	for _, f := range h.fields {
		if f == field {
			return true
		}
	}
	return false
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

var pcdFieldNames = map[string]pcdField{
	"x":         pcdFieldX,
	"y":         pcdFieldY,
	"z":         pcdFieldZ,
	"rgb":       pcdFieldRGB,
	"intensity": pcdFieldIntensity,
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) < 3 || tokens[0] != "x" || tokens[1] != "y" || tokens[2] != "z" {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			f, ok := pcdFieldNames[token]
			if !ok {
				return errors.Errorf("unsupported pcd field %s", token)
			}
			header.fields[i] = f
		}
	case "SIZE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			if header.size[i] != 4 {
				return errors.Errorf("unsupported SIZE %d, only 4 byte fields are supported", header.size[i])
			}
		}
	case "TYPE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.valTypes = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			switch t := pcdValType(token); t {
			case pcdValFloat, pcdValInt, pcdValUInt:
				header.valTypes[i] = t
			default:
				return errors.Errorf("invalid TYPE field %s", token)
			}
		}
	case "COUNT":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
			if header.count[i] != 1 {
				return errors.Errorf("unsupported COUNT %d, only scalar fields are supported", header.count[i])
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
		header.viewpoint = spatialmath.NewPose(
			r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]},
			spatialmath.NewOrientationFromQuaternion(quat.Number{
				Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6],
			}),
		)
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.width != 0 && header.width*header.height/header.width != header.height {
			return errors.Errorf("WIDTH %d * HEIGHT %d overflows", header.width, header.height)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads an ascii or binary PCD stream. Positions are transformed by the header's
// VIEWPOINT so that they come out in the acquisition's world frame.
func ReadPCD(inRaw io.Reader) ([]Point, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}

	var points []Point
	var err error
	switch header.data {
	case PCDAscii:
		points, err = readPCDAscii(in, &header)
	case PCDBinary:
		points, err = readPCDBinary(in, &header)
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, err
	}
	if header.viewpoint != nil && !spatialmath.PoseAlmostEqual(header.viewpoint, spatialmath.NewZeroPose()) {
		for i := range points {
			points[i].Position = spatialmath.TransformPoint(header.viewpoint, points[i].Position)
		}
	}
	return points, nil
}

func readPCDAscii(in *bufio.Reader, header *pcdHeader) ([]Point, error) {
	points := make([]Point, 0, pcdReserve(header))
	for i := uint64(0); i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != len(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		raw := make([]uint32, len(tokens))
		for j, token := range tokens {
			raw[j], err = parsePCDAsciiValue(token, header.valTypes[j])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		points = append(points, pcdValuesToPoint(raw, header))
	}
	return points, nil
}

func readPCDBinary(in *bufio.Reader, header *pcdHeader) ([]Point, error) {
	points := make([]Point, 0, pcdReserve(header))
	buf := make([]byte, 4*len(header.fields))
	raw := make([]uint32, len(header.fields))
	for i := uint64(0); i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		for j := range raw {
			raw[j] = binary.LittleEndian.Uint32(buf[4*j:])
		}
		points = append(points, pcdValuesToPoint(raw, header))
	}
	return points, nil
}

// maxPCDReserve caps the up front allocation for a PCD body; the header's POINTS is not trusted
// beyond it and larger clouds grow as they are read.
const maxPCDReserve = 1 << 20

func pcdReserve(header *pcdHeader) uint64 {
	return min(header.points, maxPCDReserve)
}

// parsePCDAsciiValue returns the 4 byte representation of an ascii value so that ascii and
// binary files share a decoding path.
func parsePCDAsciiValue(token string, valType pcdValType) (uint32, error) {
	switch valType {
	case pcdValFloat:
		f, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return 0, err
		}
		return math.Float32bits(float32(f)), nil
	case pcdValInt:
		v, err := strconv.ParseInt(token, 10, 32)
		return uint32(v), err
	default:
		v, err := strconv.ParseUint(token, 10, 32)
		return uint32(v), err
	}
}

func pcdValue(raw uint32, valType pcdValType) float64 {
	switch valType {
	case pcdValFloat:
		return float64(math.Float32frombits(raw))
	case pcdValInt:
		return float64(int32(raw))
	default:
		return float64(raw)
	}
}

func pcdValuesToPoint(raw []uint32, header *pcdHeader) Point {
	p := Point{Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
	for j, field := range header.fields {
		switch field {
		case pcdFieldX:
			p.Position.X = pcdValue(raw[j], header.valTypes[j])
		case pcdFieldY:
			p.Position.Y = pcdValue(raw[j], header.valTypes[j])
		case pcdFieldZ:
			p.Position.Z = pcdValue(raw[j], header.valTypes[j])
		case pcdFieldRGB:
			// packed 0x00RRGGBB regardless of declared type
			p.Color = pcdIntToColor(raw[j])
		case pcdFieldIntensity:
			p.Intensity = float32(pcdValue(raw[j], header.valTypes[j]))
			p.HasIntensity = true
		}
	}
	return p
}

func pcdIntToColor(c uint32) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func colorToPCDInt(c color.NRGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ToPCD writes points as a PCD stream. Intensity is written iff any point carries it.
func ToPCD(points []Point, out io.Writer, outputType PCDType) error {
	meta := MetaDataFromPoints(points)
	fields, size, types, count := "x y z rgb", "4 4 4 4", "F F F U", "1 1 1 1"
	if meta.HasIntensity {
		fields, size, types, count = fields+" intensity", size+" 4", types+" F", count+" 1"
	}
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	default:
		return errors.New("compressed PCD not yet implemented")
	}
	w := bufio.NewWriter(out)
	if _, err := w.WriteString(strings.Join([]string{
		"VERSION .7",
		"FIELDS " + fields,
		"SIZE " + size,
		"TYPE " + types,
		"COUNT " + count,
		"WIDTH " + strconv.Itoa(len(points)),
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS " + strconv.Itoa(len(points)),
		"DATA " + data,
	}, "\n") + "\n"); err != nil {
		return err
	}
	for _, p := range points {
		if err := writePCDPoint(w, p, meta.HasIntensity, outputType); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writePCDPoint(w *bufio.Writer, p Point, withIntensity bool, outputType PCDType) error {
	if outputType == PCDAscii {
		line := strings.Join([]string{
			strconv.FormatFloat(p.Position.X, 'f', -1, 32),
			strconv.FormatFloat(p.Position.Y, 'f', -1, 32),
			strconv.FormatFloat(p.Position.Z, 'f', -1, 32),
			strconv.FormatUint(uint64(colorToPCDInt(p.Color)), 10),
		}, " ")
		if withIntensity {
			line += " " + strconv.FormatFloat(float64(p.Intensity), 'f', -1, 32)
		}
		_, err := w.WriteString(line + "\n")
		return err
	}
	buf := make([]byte, 16, 20)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.Position.X)))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Position.Y)))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Position.Z)))
	binary.LittleEndian.PutUint32(buf[12:], colorToPCDInt(p.Color))
	if withIntensity {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Intensity))
	}
	_, err := w.Write(buf)
	return err
}
