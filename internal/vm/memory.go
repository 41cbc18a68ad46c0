package vm

import "encoding/binary"

// Memory is a sparse byte-addressable store. Unread
// locations default to 0. Segment bounds are set once by the linker;
// loads/stores against them are protection-checked unless the access
// goes through the privileged path.
type Memory struct {
	bytes map[uint32]byte

	textEnd     uint32 // set by the linker; [TextBegin, textEnd) is code
	rodataBegin uint32
	rodataEnd   uint32
	rodataSet   bool

	selfModifying bool

	// cache sits in front of this memory. Nil until the
	// simulator wires one in (or reconfigures it).
	cache *Cache

	sinks []ChangeSink

	// recorder captures pre-write byte values for the currently open history
	// diff, if any. Nil outside of a step.
	recorder diffRecorder
}

// attachRecorder installs (or clears, with nil) the active history diff
// recorder. Only the Simulator driver calls this, once per step.
func (m *Memory) attachRecorder(r diffRecorder) { m.recorder = r }

// NewMemory returns an empty memory with no segments registered yet.
func NewMemory() *Memory {
	return &Memory{bytes: make(map[uint32]byte)}
}

// SetTextEnd records the end of the text segment (exclusive), used by the
// write-protection check.
func (m *Memory) SetTextEnd(end uint32) { m.textEnd = end }

// SetRodataRange records the rodata segment's bounds (exclusive end). If
// rodata is empty across all units the linker leaves this unset.
func (m *Memory) SetRodataRange(begin, end uint32) {
	m.rodataBegin, m.rodataEnd, m.rodataSet = begin, end, true
}

// SetSelfModifying toggles self-modifying mode: when enabled,
// user stores into text succeed and misaligned half/word access is
// permitted instead of faulting.
func (m *Memory) SetSelfModifying(v bool) { m.selfModifying = v }

func (m *Memory) SelfModifying() bool { return m.selfModifying }

// AttachCache wires a cache simulator in front of this memory. Passing nil
// detaches it (every access becomes a direct memory access).
func (m *Memory) AttachCache(c *Cache) { m.cache = c }

func (m *Memory) Cache() *Cache { return m.cache }

// AddSink registers a change observer; events fire on every public store.
func (m *Memory) AddSink(s ChangeSink) { m.sinks = append(m.sinks, s) }

func (m *Memory) notify(addr uint32, value byte) {
	for _, s := range m.sinks {
		s.MemoryChanged(addr, value)
	}
}

// check applies the segment protection rules. read=true relaxes the
// text/rodata write checks (reads are always allowed in-range).
func (m *Memory) check(addr uint32, read bool) error {
	if addr <= ReservedLowEnd {
		return addressFault(addr, read)
	}
	if addr >= ReservedHighBegin {
		return addressFault(addr, read)
	}
	if !read {
		if addr < m.textEnd && addr >= TextBegin {
			if !m.selfModifying {
				return addressFault(addr, read)
			}
		} else if m.rodataSet && addr >= m.rodataBegin && addr < m.rodataEnd {
			return addressFault(addr, read)
		}
	}
	return nil
}

func (m *Memory) rawLoadByte(addr uint32) byte {
	return m.bytes[addr]
}

// recordByte tells the active diff recorder (if any) the pre-write value of
// addr, once, before it gets overwritten.
func (m *Memory) recordByte(addr uint32) {
	if m.recorder != nil {
		m.recorder.recordMem(addr, m.rawLoadByte(addr))
	}
}

func (m *Memory) rawStoreByte(addr uint32, v byte) {
	if v == 0 {
		delete(m.bytes, addr)
		return
	}
	m.bytes[addr] = v
}

// touchCache records one access spanning [addr, addr+size) with the cache
// (if any) and reports whether the whole operation was a hit.
func (m *Memory) touchCache(addr, size uint32, isWrite bool) bool {
	if m.cache == nil {
		return true
	}
	return m.cache.AccessRange(addr, size, isWrite)
}

// LoadByte performs a protected, cache-instrumented 1-byte load.
func (m *Memory) LoadByte(addr uint32) (byte, error) {
	if err := m.check(addr, true); err != nil {
		return 0, err
	}
	m.touchCache(addr, 1, false)
	return m.rawLoadByte(addr), nil
}

// LoadHalf performs a protected, cache-instrumented 2-byte load. Requires
// natural alignment unless self-modifying mode is enabled.
func (m *Memory) LoadHalf(addr uint32) (uint16, error) {
	if !m.selfModifying && addr%2 != 0 {
		return 0, addressFault(addr, true)
	}
	if err := m.check(addr, true); err != nil {
		return 0, err
	}
	if err := m.check(addr+1, true); err != nil {
		return 0, err
	}
	m.touchCache(addr, 2, false)
	buf := [2]byte{m.rawLoadByte(addr), m.rawLoadByte(addr + 1)}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// LoadWord performs a protected, cache-instrumented 4-byte load. Requires
// natural alignment unless self-modifying mode is enabled.
func (m *Memory) LoadWord(addr uint32) (uint32, error) {
	if !m.selfModifying && addr%4 != 0 {
		return 0, addressFault(addr, true)
	}
	for i := uint32(0); i < 4; i++ {
		if err := m.check(addr+i, true); err != nil {
			return 0, err
		}
	}
	m.touchCache(addr, 4, false)
	buf := [4]byte{m.rawLoadByte(addr), m.rawLoadByte(addr + 1), m.rawLoadByte(addr + 2), m.rawLoadByte(addr + 3)}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// StoreByte performs a protected, cache-instrumented 1-byte store.
func (m *Memory) StoreByte(addr uint32, v byte) error {
	if err := m.check(addr, false); err != nil {
		return err
	}
	m.touchCache(addr, 1, true)
	m.recordByte(addr)
	m.rawStoreByte(addr, v)
	m.notify(addr, v)
	return nil
}

// StoreHalf performs a protected, cache-instrumented 2-byte store.
func (m *Memory) StoreHalf(addr uint32, v uint16) error {
	if !m.selfModifying && addr%2 != 0 {
		return addressFault(addr, false)
	}
	if err := m.check(addr, false); err != nil {
		return err
	}
	if err := m.check(addr+1, false); err != nil {
		return err
	}
	m.touchCache(addr, 2, true)
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	m.recordByte(addr)
	m.recordByte(addr + 1)
	m.rawStoreByte(addr, buf[0])
	m.rawStoreByte(addr+1, buf[1])
	m.notify(addr, buf[0])
	m.notify(addr+1, buf[1])
	return nil
}

// StoreWord performs a protected, cache-instrumented 4-byte store.
func (m *Memory) StoreWord(addr uint32, v uint32) error {
	if !m.selfModifying && addr%4 != 0 {
		return addressFault(addr, false)
	}
	for i := uint32(0); i < 4; i++ {
		if err := m.check(addr+i, false); err != nil {
			return err
		}
	}
	m.touchCache(addr, 4, true)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	for i := range buf {
		m.recordByte(addr + uint32(i))
	}
	for i, b := range buf {
		m.rawStoreByte(addr+uint32(i), b)
	}
	for i, b := range buf {
		m.notify(addr+uint32(i), b)
	}
	return nil
}

// PrivilegedStoreByte bypasses protection checks and the cache. Used by the
// loader to populate text/rodata/data segments.
func (m *Memory) PrivilegedStoreByte(addr uint32, v byte) {
	m.rawStoreByte(addr, v)
	m.notify(addr, v)
}

// PrivilegedStoreWord bypasses protection checks and the cache.
func (m *Memory) PrivilegedStoreWord(addr uint32, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	for i, b := range buf {
		m.PrivilegedStoreByte(addr+uint32(i), b)
	}
}

// CloneImage copies the current byte contents, used to snapshot the
// freshly loaded program image.
func (m *Memory) CloneImage() map[uint32]byte {
	img := make(map[uint32]byte, len(m.bytes))
	for a, b := range m.bytes {
		img[a] = b
	}
	return img
}

// RestoreImage replaces the entire byte contents with a previously cloned
// image.
func (m *Memory) RestoreImage(img map[uint32]byte) {
	m.bytes = make(map[uint32]byte, len(img))
	for a, b := range img {
		m.bytes[a] = b
	}
}

// PrivilegedLoadByte bypasses protection checks and the cache.
func (m *Memory) PrivilegedLoadByte(addr uint32) byte {
	return m.rawLoadByte(addr)
}

// PrivilegedLoadWord bypasses protection checks and the cache.
func (m *Memory) PrivilegedLoadWord(addr uint32) uint32 {
	buf := [4]byte{m.rawLoadByte(addr), m.rawLoadByte(addr + 1), m.rawLoadByte(addr + 2), m.rawLoadByte(addr + 3)}
	return binary.LittleEndian.Uint32(buf[:])
}
