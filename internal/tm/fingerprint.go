package tm

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the logical content of the store: entry order, keys,
// units and orphan tags. Two stores with equal fingerprints serialize to the
// same body, which lets a session skip saves that would change nothing.
func (s *Store) Fingerprint() uint64 {
	d := xxhash.New()
	w := func(parts ...string) {
		for _, p := range parts {
			_, _ = d.WriteString(p)
			_, _ = d.Write([]byte{0})
		}
	}

	for _, sl := range s.slots {
		k, u := sl.key, sl.unit
		w(k.Source, k.Context.File, k.Context.ID, k.Context.Prev, k.Context.Next, k.Context.Path)
		w(u.Target, u.CreationID, u.ChangeID, u.Note)
		w(strconv.FormatInt(u.CreationDate.Unix(), 10), strconv.FormatInt(u.ChangeDate.Unix(), 10))
		w(strconv.FormatBool(u.Alternative), strconv.FormatBool(sl.orphaned))
		for _, p := range u.Props {
			w(p.Type, p.Lang, p.Value)
		}
		if f := u.Fidelity; f != nil {
			for _, t := range f.TargetTags {
				w(t.Shortcut, t.Raw)
			}
			for _, x := range f.ExtraTUVs {
				w(x)
			}
		}
		_, _ = d.Write([]byte{0xff})
	}
	return d.Sum64()
}
