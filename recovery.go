package nvkv

// bootState classifies the medium at cold boot.
type bootState int

const (
	stateBlank bootState = iota
	stateClean
	stateMainEraseInterrupted
	stateReserveEraseInterrupted
)

// classify inspects both area headers and determines which recovery
// action cold boot must take. mainHdr describes reserved's erase
// progress; reserveHdr describes main's erase progress (the headers are
// cross-wired, see layout.go).
func classify(m Medium) (bootState, error) {
	mainHdr, err := readHeader(m, AreaMain)
	if err != nil {
		return 0, err
	}
	reserveHdr, err := readHeader(m, AreaReserved)
	if err != nil {
		return 0, err
	}

	// mainHdr records reserved's erase progress; reserveHdr records main's.
	mainStarted := reserveHdr.isStarted()
	mainFinished := reserveHdr.isFinished()
	mainClean := mainHdr.clean()

	reserveStarted := mainHdr.isStarted()
	reserveFinished := mainHdr.isFinished()
	reserveClean := reserveHdr.clean()

	if reserveFinished && reserveClean {
		return stateClean, nil
	}

	if (mainStarted || mainFinished) && !mainClean {
		return stateMainEraseInterrupted, nil
	}

	if (reserveFinished && !reserveClean) || (reserveStarted && !reserveFinished) {
		return stateReserveEraseInterrupted, nil
	}

	return stateBlank, nil
}

// coldBoot classifies the medium and drives whichever recovery step, if
// any, is required. It is run once, synchronously, inside Init.
func (s *Store) coldBoot() error {
	s.dir.reset()

	state, err := classify(s.medium)
	if err != nil {
		return err
	}

	switch state {
	case stateClean:
		return s.rebuildFromMain()
	case stateMainEraseInterrupted:
		return s.recoverInterruptedMainErase()
	case stateReserveEraseInterrupted:
		return s.recoverInterruptedReserveErase()
	default: // stateBlank
		return s.prepareForFirstUse()
	}
}

// prepareForFirstUse erases both areas, stamps main's header to the
// canonical "reserved was erased cleanly" pattern, and starts the log at
// the first record slot.
func (s *Store) prepareForFirstUse() error {
	if err := s.medium.EraseMain(); err != nil {
		return err
	}
	if err := s.medium.EraseReserve(); err != nil {
		return err
	}

	if err := writeHeaderByte(s.medium, AreaMain, 0, eraseStarted); err != nil {
		return err
	}
	if err := writeHeaderByte(s.medium, AreaMain, 1, eraseFinished); err != nil {
		return err
	}

	s.nextBlock = MetadataSize
	return nil
}

// rebuildFromMain scans main forward in EntrySize strides, feeding every
// live record into the directory, and sets nextBlock to the first fully
// erased slot encountered.
func (s *Store) rebuildFromMain() error {
	s.dir.reset()

	offset := Offset(MetadataSize)
	end := mainEnd(s.medium)
	for offset+EntrySize <= end {
		key, _, err := readEntry(s.medium, offset)
		if err == ErrNotExist {
			break
		}
		if err != nil {
			return err
		}

		if err := s.dir.update(key, offset); err != nil {
			return err
		}
		offset += EntrySize
	}

	s.nextBlock = offset
	return nil
}

// recoverInterruptedMainErase re-erases main (the erase that was
// interrupted may have left it in an indeterminate state), restores the
// live set from reserved, then erases reserved via prepareArea, which
// leaves main's header at the canonical "reserved erased cleanly" pattern.
func (s *Store) recoverInterruptedMainErase() error {
	if err := s.medium.EraseMain(); err != nil {
		return err
	}
	if err := s.transferReserveToMain(); err != nil {
		return err
	}
	return prepareArea(s.medium, AreaReserved)
}

// recoverInterruptedReserveErase re-erases reserved and rebuilds the
// directory from main, which is already authoritative.
func (s *Store) recoverInterruptedReserveErase() error {
	if err := s.medium.EraseReserve(); err != nil {
		return err
	}
	return s.rebuildFromMain()
}

// transferReserveToMain scans reserved forward, writing each live record
// back into main starting at MetadataSize, updating the directory and
// advancing nextBlock as it goes.
func (s *Store) transferReserveToMain() error {
	reserveOffset := reserveBase(s.medium)

	var offset Offset = MetadataSize
	for offset+EntrySize <= s.medium.Reserved() {
		key, value, err := readEntry(s.medium, reserveOffset+offset)
		if err == ErrNotExist {
			break
		}
		if err != nil {
			return err
		}

		if err := writeEntry(s.medium, offset, key, value); err != nil {
			return err
		}
		if err := s.dir.update(key, offset); err != nil {
			return err
		}
		offset += EntrySize
	}

	s.nextBlock = offset
	return nil
}

// transferMainToReserve iterates the directory in insertion order,
// copying each live key's current record into reserved, so every live
// key is transferred exactly once.
func (s *Store) transferMainToReserve() error {
	reserveOffset := reserveBase(s.medium) + MetadataSize

	for i := 0; i < s.dir.usedCount(); i++ {
		row := s.dir.at(i)
		key, value, err := readEntry(s.medium, row.offset)
		if err != nil {
			return err
		}
		if err := writeEntry(s.medium, reserveOffset, key, value); err != nil {
			return err
		}
		reserveOffset += EntrySize
	}

	return nil
}

// restartMap performs wear-leveling compaction: backs up the live set to
// reserved, erases main, restores it, and re-erases reserved. All data is
// defragmented as a result.
func (s *Store) restartMap() error {
	if err := s.transferMainToReserve(); err != nil {
		return err
	}
	if err := prepareArea(s.medium, AreaMain); err != nil {
		return err
	}
	if err := s.transferReserveToMain(); err != nil {
		return err
	}
	return prepareArea(s.medium, AreaReserved)
}
