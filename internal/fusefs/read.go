package fusefs

import (
	"os"

	"github.com/mufanc/fpatch/internal/patch"
	"github.com/mufanc/fpatch/pkg/errors"
)

// readVirtual returns the [begin, begin+size) window (clamped to maxIndex)
// of a record's virtual byte stream, positionally reading the real target
// file on disk only for the sub-range the requested window actually
// touches.
func readVirtual(rec patch.Record, begin, size, maxIndex int) ([]byte, error) {
	end := minInt(begin+size, maxIndex)
	if end <= begin {
		return nil, nil
	}

	var srcSize int
	if rec.Mode != patch.Replace {
		info, err := os.Stat(rec.Path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, "stat target file", err).WithContext("path", rec.Path)
		}
		srcSize = int(info.Size())
	}

	reg := computeRegion(rec.Mode, begin, size, maxIndex, srcSize, len(rec.Content))

	var srcBuf, dataBuf []byte

	if reg.sSize() > 0 {
		f, err := os.Open(rec.Path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, "open target file", err).WithContext("path", rec.Path)
		}
		defer f.Close()

		srcBuf = make([]byte, reg.sSize())
		if _, err := f.ReadAt(srcBuf, int64(reg.sBegin)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, "read target file", err).WithContext("path", rec.Path)
		}
	}

	if reg.dSize() > 0 {
		dataBuf = rec.Content[reg.dBegin:reg.dEnd]
	}

	switch rec.Mode {
	case patch.Prepend:
		out := make([]byte, 0, len(dataBuf)+len(srcBuf))
		out = append(out, dataBuf...)
		out = append(out, srcBuf...)
		return out, nil
	case patch.Append:
		out := make([]byte, 0, len(srcBuf)+len(dataBuf))
		out = append(out, srcBuf...)
		out = append(out, dataBuf...)
		return out, nil
	default: // Replace
		out := make([]byte, len(dataBuf))
		copy(out, dataBuf)
		return out, nil
	}
}
