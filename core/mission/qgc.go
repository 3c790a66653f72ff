package mission

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const qgcHeader = "QGC WPL 110"

// WriteQGC writes items in the QGroundControl WPL 110 text format.
func WriteQGC(w io.Writer, items []Item) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, qgcHeader); err != nil {
		return err
	}
	for _, it := range items {
		_, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%.7f\t%.7f\t%s\t%d\n",
			it.Seq, it.Current, it.Frame, it.Command,
			fmtFloat(it.Param1), fmtFloat(it.Param2), fmtFloat(it.Param3), fmtFloat(it.Param4),
			it.Lat(), it.Lon(), fmtFloat(it.Z), it.Autocontinue)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func fmtFloat(f float32) string { return strconv.FormatFloat(float64(f), 'f', -1, 32) }

// ReadQGC parses a WPL 110 file. Items are renumbered in file order.
func ReadQGC(r io.Reader) ([]Item, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: empty file", ErrBadFormat)
	}
	if !strings.HasPrefix(strings.TrimSpace(sc.Text()), "QGC WPL") {
		return nil, fmt.Errorf("%w: missing QGC WPL header", ErrBadFormat)
	}
	var items []Item
	line := 1
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 12 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrBadFormat, line, len(fields))
		}
		it, err := parseQGCLine(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadFormat, line, err)
		}
		it.Seq = uint16(len(items))
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyMission
	}
	return items, nil
}

func parseQGCLine(f []string) (Item, error) {
	ints := make([]uint64, 4)
	for i, idx := range []int{1, 2, 3, 11} {
		v, err := strconv.ParseUint(f[idx], 10, 16)
		if err != nil {
			return Item{}, err
		}
		ints[i] = v
	}
	floats := make([]float64, 7)
	for i := range floats {
		v, err := strconv.ParseFloat(f[4+i], 64)
		if err != nil {
			return Item{}, err
		}
		floats[i] = v
	}
	return Item{
		Current:      uint8(ints[0]),
		Frame:        uint8(ints[1]),
		Command:      uint16(ints[2]),
		Autocontinue: uint8(ints[3]),
		Param1:       float32(floats[0]),
		Param2:       float32(floats[1]),
		Param3:       float32(floats[2]),
		Param4:       float32(floats[3]),
		X:            ToDegE7(floats[4]),
		Y:            ToDegE7(floats[5]),
		Z:            float32(floats[6]),
	}, nil
}
