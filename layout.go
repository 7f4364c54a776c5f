package nvkv

// header is the 2-byte metadata prefix at the start of an area.
//
// Crucial convention (carried exactly from the reference): the header of
// area X records progress of the erase/restore cycle of the OTHER area Y.
// Main's header reflects reserved's erase; reserved's header reflects
// main's erase.
type header struct {
	started  byte
	finished byte
}

func (h header) clean() bool {
	return h.started == erasedByte && h.finished == erasedByte
}

func (h header) isStarted() bool {
	return h.started == eraseStarted
}

func (h header) isFinished() bool {
	return h.finished == eraseFinished
}

// mainBase and reserveBase are the absolute byte offsets of each area's
// first byte.
func mainBase() Offset { return 0 }

func reserveBase(m Medium) Offset {
	return m.Size() - m.Reserved()
}

func mainEnd(m Medium) Offset {
	return m.Size() - m.Reserved()
}

// readHeader reads the 2-byte header at the start of area.
func readHeader(m Medium, area Area) (header, error) {
	base := mainBase()
	if area == AreaReserved {
		base = reserveBase(m)
	}

	var buf [MetadataSize]byte
	if err := m.Read(buf[:], base, MetadataSize); err != nil {
		return header{}, err
	}
	return header{started: buf[0], finished: buf[1]}, nil
}

// writeHeaderByte writes a single header byte (offset 0 = started,
// offset 1 = finished) for area.
func writeHeaderByte(m Medium, area Area, byteOffset Offset, value byte) error {
	base := mainBase()
	if area == AreaReserved {
		base = reserveBase(m)
	}

	buf := [1]byte{value}
	return m.Write(buf[:], base+byteOffset, 1)
}

// prepareArea stamps the OTHER area's header to record that area's
// erase cycle progress, erases area, then stamps the finished byte. This
// is the transactional record that a compaction half completed: at any
// power-loss point within this function, the header pair plus the
// erased/non-erased state of the two areas uniquely identifies which
// half was in flight.
func prepareArea(m Medium, area Area) error {
	other := AreaReserved
	eraseFn := m.EraseMain
	if area == AreaReserved {
		other = AreaMain
		eraseFn = m.EraseReserve
	}

	if err := writeHeaderByte(m, other, 0, eraseStarted); err != nil {
		return err
	}
	if err := eraseFn(); err != nil {
		return err
	}
	return writeHeaderByte(m, other, 1, eraseFinished)
}
