package vm

import "testing"

func protectedMemory() *Memory {
	m := NewMemory()
	m.SetTextEnd(TextBegin + 0x100)
	m.SetRodataRange(StaticBegin, StaticBegin+0x10)
	return m
}

func TestUnreadMemoryDefaultsToZero(t *testing.T) {
	m := protectedMemory()
	v, err := m.LoadWord(StaticBegin + 0x100)
	assert(t, err == nil, "load failed: %v", err)
	assert(t, v == 0, "unwritten memory must read 0, got %08x", v)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	m := protectedMemory()
	addr := StaticBegin + 0x40

	assert(t, m.StoreWord(addr, 0x12345678) == nil, "word store failed")
	w, _ := m.LoadWord(addr)
	assert(t, w == 0x12345678, "word = %08x", w)

	b, _ := m.LoadByte(addr)
	assert(t, b == 0x78, "little-endian low byte = %02x", b)
	h, _ := m.LoadHalf(addr + 2)
	assert(t, h == 0x1234, "high half = %04x", h)
}

func TestReservedRegionsFault(t *testing.T) {
	m := protectedMemory()
	_, err := m.LoadByte(0x1000)
	assert(t, err != nil, "reserved-low read must fault")
	err = m.StoreByte(0xFFFF0000, 1)
	assert(t, err != nil, "reserved-high write must fault")

	sf, ok := err.(*SimulationFault)
	assert(t, ok && sf.Kind == FaultInvalidAddress, "fault must be InvalidAddress, got %v", err)
	assert(t, !sf.Read && sf.Addr == 0xFFFF0000, "fault must carry the write address")
}

func TestTextAndRodataWriteProtection(t *testing.T) {
	m := protectedMemory()
	assert(t, m.StoreByte(TextBegin+4, 1) != nil, "text store must fault")
	assert(t, m.StoreByte(StaticBegin, 1) != nil, "rodata store must fault")

	_, err := m.LoadWord(TextBegin + 4)
	assert(t, err == nil, "text reads are allowed")
	_, err = m.LoadByte(StaticBegin)
	assert(t, err == nil, "rodata reads are allowed")
}

func TestSelfModifyingMode(t *testing.T) {
	m := protectedMemory()
	m.SetSelfModifying(true)
	assert(t, m.StoreWord(TextBegin+4, 0x13) == nil, "self-modifying mode permits text stores")
	_, err := m.LoadWord(StaticBegin + 0x41)
	assert(t, err == nil, "self-modifying mode permits misaligned loads")

	// Rodata stays read-only either way.
	assert(t, m.StoreByte(StaticBegin, 1) != nil, "rodata store must still fault")
}

func TestAlignmentFaults(t *testing.T) {
	m := protectedMemory()
	_, err := m.LoadHalf(StaticBegin + 0x41)
	assert(t, err != nil, "misaligned half load must fault")
	_, err = m.LoadWord(StaticBegin + 0x42)
	assert(t, err != nil, "misaligned word load must fault")
	assert(t, m.StoreHalf(StaticBegin+0x41, 1) != nil, "misaligned half store must fault")
}

func TestPrivilegedPathBypassesProtection(t *testing.T) {
	m := protectedMemory()
	m.PrivilegedStoreWord(TextBegin, 0x00700093)
	w, err := m.LoadWord(TextBegin)
	assert(t, err == nil && w == 0x00700093, "loader stores land in text")
}

func TestCloneRestoreImage(t *testing.T) {
	m := protectedMemory()
	m.PrivilegedStoreWord(StaticBegin+0x20, 0xCAFEBABE)
	img := m.CloneImage()

	assert(t, m.StoreWord(StaticBegin+0x20, 1) == nil, "overwrite failed")
	m.RestoreImage(img)
	w, _ := m.LoadWord(StaticBegin + 0x20)
	assert(t, w == 0xCAFEBABE, "restore must bring back the snapshot, got %08x", w)
}
