// Package encoding implements the bounded-width bitfield encoding engine:
// one Mapping per AS-path depth, growing in bytes (bits, despite the name
// carried over from the source) as needed and assigning each AS a
// distinct code within its depth's current width.
package encoding

import "sort"

// refcount tracks how an AS number is referenced within one Mapping: the
// assigned code, and separate use-counts for its role as the "from" side
// of an edge versus the "to" side, since the same AS can appear on both
// sides of different links at the same depth.
type refcount struct {
	code int
	from int
	to   int
}

// Mapping is a single depth's AS-to-code bitfield: nbBytes bits wide,
// holding up to 2^nbBytes-1 live codes (code 0 is reserved for "not
// encoded") and growing by one bit at a time via AddByte.
type Mapping struct {
	nbBytes int
	free    []int // sorted ascending; free[0] is the next code to hand out
	mapping map[int64]*refcount
	blocked bool
	maxFree int
}

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{
		mapping: make(map[int64]*refcount),
		maxFree: 500,
	}
}

func (m *Mapping) insertFree(code int) {
	i := sort.SearchInts(m.free, code)
	m.free = append(m.free, 0)
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = code
}

func (m *Mapping) popFree() int {
	code := m.free[0]
	m.free = m.free[1:]
	return code
}

// AddByte widens the mapping by one bit, doubling its code space. The
// first call also reserves code 0 for the "not encoded" sentinel AS -1.
func (m *Mapping) AddByte() {
	if m.nbBytes == 0 {
		m.mapping[-1] = &refcount{code: 0, from: -1, to: -1}
	}
	m.nbBytes++
	lo := 1 << uint(m.nbBytes-1)
	hi := 1 << uint(m.nbBytes)
	for i := lo; i < hi; i++ {
		m.insertFree(i)
	}
}

// Add assigns asn a code if it doesn't have one yet, growing the mapping
// (respecting overprovisioning/maxFree) as needed. It returns the number
// of bits added and whether asn was newly assigned a code.
func (m *Mapping) Add(asn int64, fromAS bool, overprovisioning bool) (bitsAdded int, added bool) {
	rc, exists := m.mapping[asn]
	if exists {
		if fromAS {
			rc.from++
		} else {
			rc.to++
		}
		return 0, false
	}

	if len(m.free) == 0 {
		if m.blocked {
			return -1, false
		}
		m.AddByte()
		bitsAdded++
	}

	if overprovisioning {
		if len(m.free) <= len(m.mapping) && len(m.free) < m.maxFree {
			if m.blocked {
				return -1, false
			}
			m.AddByte()
			bitsAdded++
		}
	}

	code := m.free[0]
	entry := &refcount{code: code}
	if fromAS {
		entry.from = 1
	} else {
		entry.to = 1
	}
	m.mapping[asn] = entry
	m.popFree()

	return bitsAdded, true
}

// IsAvailable returns how many additional bits would be required to add
// asn to the mapping: 0 if it already has room, 2 if overprovisioning is
// on and this would be the mapping's very first byte (the extra bit funds
// the reserved code-0 sentinel), 1 otherwise.
func (m *Mapping) IsAvailable(asn int64, overprovisioning bool, offset int) int {
	if _, exists := m.mapping[asn]; exists {
		return 0
	}
	if overprovisioning {
		if !(len(m.free)-offset > len(m.mapping)+offset || len(m.free)-offset > m.maxFree) {
			if m.nbBytes == 0 {
				return 2
			}
			return 1
		}
		return 0
	}
	if len(m.free)-offset > 0 {
		return 0
	}
	return 1
}

// Remove decrements asn's reference count for the given side and, once
// both sides are unreferenced, frees its code and reports true.
func (m *Mapping) Remove(asn int64, fromAS bool) bool {
	rc, exists := m.mapping[asn]
	if !exists {
		return false
	}
	if fromAS {
		rc.from--
	} else {
		rc.to--
	}

	if rc.from == 0 && rc.to == 0 {
		delete(m.mapping, asn)
		m.insertFree(rc.code)
		return true
	}
	return false
}

// GetMappingString returns the zero-padded binary code string for asn, or
// all zeros (width nbBytes) if asn has no code.
func (m *Mapping) GetMappingString(asn int64) string {
	code := 0
	if rc, exists := m.mapping[asn]; exists {
		code = rc.code
	}
	s := ""
	if code > 0 {
		for n := code; n > 0; n >>= 1 {
			s = string(rune('0'+(n&1))) + s
		}
	}
	for len(s) < m.nbBytes {
		s = "0" + s
	}
	return s
}

// Code returns the raw integer code assigned to asn, or 0 if unassigned.
func (m *Mapping) Code(asn int64) int {
	if rc, exists := m.mapping[asn]; exists {
		return rc.code
	}
	return 0
}

// Has reports whether asn currently has a code in this mapping.
func (m *Mapping) Has(asn int64) bool {
	_, exists := m.mapping[asn]
	return exists
}

// NbBytes returns the current bit width of this mapping.
func (m *Mapping) NbBytes() int { return m.nbBytes }

// Len returns the number of AS numbers currently holding a code.
func (m *Mapping) Len() int { return len(m.mapping) }

// Block prevents the mapping from growing any further.
func (m *Mapping) Block() { m.blocked = true }

// FreeLen returns the number of unassigned codes.
func (m *Mapping) FreeLen() int { return len(m.free) }
