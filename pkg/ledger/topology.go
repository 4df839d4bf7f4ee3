package ledger

// The battlefield is a fixed wheel: bunker 3 is the hub, adjacent to all,
// and the rim runs 1-2-4-5-1. Only relocation consults adjacency; an attack
// may target any bunker.
var adjacency = [BunkerCount + 1][BunkerCount + 1]bool{
	1: {2: true, 3: true, 5: true},
	2: {1: true, 3: true, 4: true},
	3: {1: true, 2: true, 4: true, 5: true},
	4: {2: true, 3: true, 5: true},
	5: {1: true, 3: true, 4: true},
}

// ValidBunker reports whether id names one of the five bunkers.
func ValidBunker(id uint8) bool {
	return id >= 1 && id <= BunkerCount
}

// Adjacent reports whether a participant may relocate from a to b. The
// graph is symmetric and has no self-edges.
func Adjacent(a, b uint8) bool {
	if !ValidBunker(a) || !ValidBunker(b) {
		return false
	}
	return adjacency[a][b]
}

// Neighbors lists the bunkers reachable from id in one move.
func Neighbors(id uint8) []uint8 {
	if !ValidBunker(id) {
		return nil
	}
	out := make([]uint8, 0, BunkerCount-1)
	for b := uint8(1); b <= BunkerCount; b++ {
		if adjacency[id][b] {
			out = append(out, b)
		}
	}
	return out
}
