package nvkv

// allocateBlock reserves the next record slot in main and returns its
// offset. If main is exhausted, it triggers compaction first.
func (s *Store) allocateBlock() (Offset, error) {
	if s.nextBlock+EntrySize > mainEnd(s.medium) {
		if err := s.restartMap(); err != nil {
			return 0, err
		}
	}

	offset := s.nextBlock
	s.nextBlock += EntrySize
	return offset, nil
}
