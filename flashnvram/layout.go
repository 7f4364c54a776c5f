package flashnvram

import "github.com/openenterprise/nvkv"

// sectorAlign rounds n up to the next multiple of SectorSize.
func sectorAlign(n nvkv.Offset) nvkv.Offset {
	rem := n % SectorSize
	if rem == 0 {
		return n
	}
	return n + (SectorSize - rem)
}

// PlanLayout computes a sector-aligned (size, reserved) pair for a flash
// region of partitionSize bytes, setting aside roughly reservedFraction of
// it (0 < reservedFraction < 1) as the reserved area. The main region
// always gets whatever sectors are left over after rounding the reserved
// area up, so size == partitionSize rounded down to a whole sector.
func PlanLayout(partitionSize nvkv.Offset, reservedFraction float64) (size, reserved nvkv.Offset) {
	size = (partitionSize / SectorSize) * SectorSize
	reserved = sectorAlign(nvkv.Offset(float64(size) * reservedFraction))
	if reserved >= size {
		reserved = size - SectorSize
	}
	return size, reserved
}
