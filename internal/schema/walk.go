package schema

import (
	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// walkLive performs a full sequential scan of tf from its data offset
// to the current append offset, calling visit with every non-deleted
// record belonging to vtable. It mirrors internal/engine's own
// sequential-cursor/block-skip walk (cursor.go), kept as a small,
// separate copy here since schema bootstrap runs before any Catalog
// exists to hand the engine a Catalog to scan through.
func walkLive(tf *tablefile.TableFile, vtable types.VTable, visit func(ids []types.Col, cols []types.ColValue, off types.Off)) error {
	bs := types.Off(tf.BlockSize())
	end := types.Off(tf.Header().Append)
	pos := types.Off(tf.Header().DataOffset)

	for pos < end {
		blockEnd := ((pos / bs) + 1) * bs

		dm, err := tf.GetDataMap(pos)
		if err != nil {
			return err
		}
		rel := int(pos - dm.Off)
		if rel >= len(dm.Base) || dm.Base[rel] != record.Magic {
			dm.Release()
			pos = blockEnd
			continue
		}

		dec, err := record.Decode(dm.Base[rel:])
		dm.Release()
		if err != nil {
			return err
		}

		size := types.Off(dec.Head.Size)
		if dec.Head.VTable == vtable && dec.Head.Flags&record.FlagDelete == 0 {
			visit(dec.IDs, dec.Cols, pos)
		}
		pos += size
	}
	return nil
}

// walkRaw performs the same sequential block-skip scan as walkLive but
// calls visit with every record's raw encoded bytes (deletes included,
// every vtable sharing tf included), restricted to [start, end) on
// rh_Stamp. Used by RAWREAD to stream a replication range without
// decoding column values it will never need.
func walkRaw(tf *tablefile.TableFile, start, end types.Stamp, visit func(raw []byte) error) error {
	bs := types.Off(tf.BlockSize())
	stop := types.Off(tf.Header().Append)
	pos := types.Off(tf.Header().DataOffset)

	for pos < stop {
		blockEnd := ((pos / bs) + 1) * bs

		dm, err := tf.GetDataMap(pos)
		if err != nil {
			return err
		}
		rel := int(pos - dm.Off)
		if rel >= len(dm.Base) || dm.Base[rel] != record.Magic {
			dm.Release()
			pos = blockEnd
			continue
		}

		dec, err := record.Decode(dm.Base[rel:])
		if err != nil {
			dm.Release()
			return err
		}
		size := types.Off(dec.Head.Size)
		if dec.Head.Stamp >= start && dec.Head.Stamp < end {
			raw := make([]byte, size)
			copy(raw, dm.Base[rel:int(rel)+int(size)])
			dm.Release()
			if err := visit(raw); err != nil {
				return err
			}
		} else {
			dm.Release()
		}
		pos += size
	}
	return nil
}
