package engine

import (
	"io"

	"github.com/jonahharris/osdb-backplane-sub001/internal/index"
	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// readRecord decodes the record whose header starts at off, using the
// table file's block-sized DataMap cache.
func readRecord(tf *tablefile.TableFile, off types.Off) (*record.Decoded, error) {
	dm, err := tf.GetDataMap(off)
	if err != nil {
		return nil, err
	}
	defer dm.Release()

	rel := int(off - dm.Off)
	if rel < 0 || rel >= len(dm.Base) {
		return nil, io.ErrUnexpectedEOF
	}
	return record.Decode(dm.Base[rel:])
}

// rowCursor yields (record, offset) pairs for one TableI's scan,
// either walking the file sequentially in append order or following an
// index-bounded range.
type rowCursor struct {
	tf  *tablefile.TableFile
	end types.Off // StartAppend: never read past what was visible at plan time

	// sequential scan state
	pos      types.Off
	seq      bool

	// index scan state
	idxCur *index.Cursor
}

// newSequentialCursor walks the table file in append order from its
// data offset up to end.
func newSequentialCursor(tf *tablefile.TableFile, end types.Off) *rowCursor {
	return &rowCursor{tf: tf, end: end, pos: types.Off(tf.Header().DataOffset), seq: true}
}

// newIndexCursor follows ix's range-bounded ordering, skipping any
// offset at or beyond end (a write this query must not observe).
func newIndexCursor(tf *tablefile.TableFile, ix *index.Index, key []byte, op types.OpCode, end types.Off) *rowCursor {
	return &rowCursor{tf: tf, end: end, idxCur: ix.SetRange(key, op)}
}

// Next returns the next candidate record and its offset, or io.EOF
// when the scan is exhausted.
func (c *rowCursor) Next() (*record.Decoded, types.Off, error) {
	if c.seq {
		return c.nextSequential()
	}
	return c.nextIndexed()
}

func (c *rowCursor) nextSequential() (*record.Decoded, types.Off, error) {
	bs := types.Off(c.tf.BlockSize())
	for {
		if c.pos >= c.end {
			return nil, 0, io.EOF
		}
		blockEnd := ((c.pos / bs) + 1) * bs

		dm, err := c.tf.GetDataMap(c.pos)
		if err != nil {
			return nil, 0, err
		}
		rel := int(c.pos - dm.Off)
		if rel >= len(dm.Base) || dm.Base[rel] != record.Magic {
			dm.Release()
			c.pos = blockEnd
			continue
		}

		dec, err := record.Decode(dm.Base[rel:])
		dm.Release()
		if err != nil {
			return nil, 0, err
		}
		off := c.pos
		c.pos += types.Off(dec.Head.Size)
		return dec, off, nil
	}
}

func (c *rowCursor) nextIndexed() (*record.Decoded, types.Off, error) {
	for {
		off, ok := c.idxCur.Next()
		if !ok {
			return nil, 0, io.EOF
		}
		if off >= c.end {
			continue
		}
		dec, err := readRecord(c.tf, off)
		if err != nil {
			return nil, 0, err
		}
		return dec, off, nil
	}
}
