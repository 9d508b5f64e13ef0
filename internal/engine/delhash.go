package engine

import (
	"io"

	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// delHash is the per-query, per-table record of which content hashes
// have been deleted at or before the query's freeze stamp (spec.md
// §4.5 Deletes). A DELETE record carries the same content hash as the
// INSERT it retires; once a hash appears here, every INSERT-flagged
// record sharing it is suppressed, which is what makes UPDATE's
// DELETE+INSERT pair replace rather than duplicate a row.
type delHash map[uint16]struct{}

// buildDelHash performs the "first pass over the deleted vtable/stamp
// window" spec.md describes: a full sequential walk collecting every
// hash retired by a DELETE-flagged record visible at freeze. vtable
// scopes the walk to one logical table, since a physical .dt0 file may
// carry records for several vtables at once (spec.md §6 file layout).
func buildDelHash(tf *tablefile.TableFile, vtable types.VTable, freeze types.Stamp, end types.Off) (delHash, error) {
	dh := make(delHash)
	cur := newSequentialCursor(tf, end)
	for {
		dec, _, err := cur.Next()
		if err == io.EOF {
			return dh, nil
		}
		if err != nil {
			return nil, err
		}
		if dec.Head.VTable != vtable || dec.Head.Stamp > freeze {
			continue
		}
		if dec.Head.Flags&record.FlagDelete != 0 {
			dh[dec.Head.Hash] = struct{}{}
		}
	}
}

// visible reports whether dec should be considered a live row for a
// scan at freeze: not from the future, not itself a delete marker, and
// not retired by a later delete sharing its content hash.
func (dh delHash) visible(dec *record.Decoded, freeze types.Stamp) bool {
	if dec.Head.Stamp > freeze {
		return false
	}
	if dec.Head.Flags&record.FlagDelete != 0 {
		return false
	}
	_, deleted := dh[dec.Head.Hash]
	return !deleted
}
