package imgsource

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/image/tiff"

	"partitionk/internal/models"
)

// decodePages decodes every page of a TIFF file into intensity planes.
//
// The x/image/tiff decoder only reads the page referenced by the header's
// first-IFD offset, so multi-page files are handled by walking the IFD chain
// ourselves and re-pointing the header at each page before decoding it. The
// pixel decoding itself stays entirely in the library.
func decodePages(path string) ([]*models.Plane, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	offsets, order, err := pageOffsets(data)
	if err != nil {
		return nil, err
	}

	planes := make([]*models.Plane, 0, len(offsets))
	header := make([]byte, len(data))
	copy(header, data)
	for i, off := range offsets {
		order.PutUint32(header[4:8], off)
		img, err := tiff.Decode(bytes.NewReader(header))
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		planes = append(planes, models.PlaneFromImage(img))
	}
	return planes, nil
}

// pageOffsets walks the IFD chain of a classic TIFF file and returns the
// offset of every page directory plus the file's byte order.
func pageOffsets(data []byte) ([]uint32, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("file too short for TIFF header")
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("not a TIFF file")
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, nil, fmt.Errorf("unsupported TIFF variant (magic %d)", order.Uint16(data[2:4]))
	}

	var offsets []uint32
	off := order.Uint32(data[4:8])
	for off != 0 {
		if int(off)+2 > len(data) {
			return nil, nil, fmt.Errorf("IFD offset %d beyond end of file", off)
		}
		offsets = append(offsets, off)

		// Each IFD is a 2-byte entry count, count*12 entry bytes, and a
		// 4-byte offset to the next IFD (0 terminates the chain).
		count := int(order.Uint16(data[off : off+2]))
		next := int(off) + 2 + count*12
		if next+4 > len(data) {
			return nil, nil, fmt.Errorf("IFD at %d truncated", off)
		}
		off = order.Uint32(data[next : next+4])

		if len(offsets) > 65536 {
			return nil, nil, fmt.Errorf("IFD chain does not terminate")
		}
	}

	if len(offsets) == 0 {
		return nil, nil, fmt.Errorf("TIFF file has no pages")
	}
	return offsets, order, nil
}
