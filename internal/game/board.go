package game

// Cell is one board grid entry. Zero value means empty; occupied cells
// keep the label of whatever produced them.
type Cell int8

const (
	CellEmpty Cell = iota
	CellI
	CellO
	CellT
	CellS
	CellZ
	CellJ
	CellL
	CellMini
	CellHollow
	// CellGold awards bonus stars when cleared in a full row.
	CellGold
	// CellGarbage is filler from random_spawner and fill_holes.
	CellGarbage
)

// Board is a fixed-size playfield. Row 0 is the top; gravity increases y.
type Board struct {
	Width  int
	Height int
	cells  [][]Cell
}

// NewBoard creates an empty board.
func NewBoard(width, height int) *Board {
	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
	}
	return &Board{Width: width, Height: height, cells: cells}
}

// Clone deep-copies the board.
func (b *Board) Clone() *Board {
	out := NewBoard(b.Width, b.Height)
	for y := range b.cells {
		copy(out.cells[y], b.cells[y])
	}
	return out
}

// At returns the cell at (x, y); out-of-bounds reads are empty.
func (b *Board) At(x, y int) Cell {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return CellEmpty
	}
	return b.cells[y][x]
}

// Set writes the cell at (x, y); out-of-bounds writes are dropped.
func (b *Board) Set(x, y int, c Cell) {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return
	}
	b.cells[y][x] = c
}

// Fits reports whether a shape can occupy position (x, y) without
// leaving the field or overlapping occupied cells.
func (b *Board) Fits(shape [][]bool, x, y int) bool {
	for dy, row := range shape {
		for dx, filled := range row {
			if !filled {
				continue
			}
			cx, cy := x+dx, y+dy
			if cx < 0 || cx >= b.Width || cy < 0 || cy >= b.Height {
				return false
			}
			if b.cells[cy][cx] != CellEmpty {
				return false
			}
		}
	}
	return true
}

// Lock stamps the piece onto the board using its type's cell label.
func (b *Board) Lock(p *Piece) {
	label := p.Type.Cell()
	for dy, row := range p.Shape {
		for dx, filled := range row {
			if filled {
				b.Set(p.X+dx, p.Y+dy, label)
			}
		}
	}
}

// ClearFullRows removes every complete row, collapses the stack, and
// returns the number of cleared rows plus the gold cells among them.
func (b *Board) ClearFullRows() (rows int, goldCells int) {
	kept := make([][]Cell, 0, b.Height)
	for y := 0; y < b.Height; y++ {
		full := true
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] == CellEmpty {
				full = false
				break
			}
		}
		if !full {
			kept = append(kept, b.cells[y])
			continue
		}
		rows++
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] == CellGold {
				goldCells++
			}
		}
	}
	if rows == 0 {
		return 0, 0
	}

	fresh := make([][]Cell, rows)
	for i := range fresh {
		fresh[i] = make([]Cell, b.Width)
	}
	b.cells = append(fresh, kept...)
	return rows, goldCells
}

// Heights returns per-column stack heights (0 for an empty column).
func (b *Board) Heights() []int {
	heights := make([]int, b.Width)
	for x := 0; x < b.Width; x++ {
		for y := 0; y < b.Height; y++ {
			if b.cells[y][x] != CellEmpty {
				heights[x] = b.Height - y
				break
			}
		}
	}
	return heights
}

// MaxHeight returns the tallest column height.
func (b *Board) MaxHeight() int {
	max := 0
	for _, h := range b.Heights() {
		if h > max {
			max = h
		}
	}
	return max
}

// CountHoles counts empty cells with at least one occupied cell above
// them in the same column.
func (b *Board) CountHoles() int {
	holes := 0
	for x := 0; x < b.Width; x++ {
		covered := false
		for y := 0; y < b.Height; y++ {
			if b.cells[y][x] != CellEmpty {
				covered = true
			} else if covered {
				holes++
			}
		}
	}
	return holes
}

// occupiedCells lists occupied coordinates in row-major order.
func (b *Board) occupiedCells() [][2]int {
	out := make([][2]int, 0, b.Width*b.Height/4)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] != CellEmpty {
				out = append(out, [2]int{x, y})
			}
		}
	}
	return out
}

// Earthquake clears each occupied cell with densityPct percent
// probability, leaving the survivors in place. Returns cells cleared.
func (b *Board) Earthquake(fx *Stream, densityPct int) int {
	cleared := 0
	for _, c := range b.occupiedCells() {
		if fx.Intn(100) < densityPct {
			b.cells[c[1]][c[0]] = CellEmpty
			cleared++
		}
	}
	return cleared
}

// RemoveBottomRows deletes the k lowest non-empty rows and lets the
// stack fall. Returns rows removed.
func (b *Board) RemoveBottomRows(k int) int {
	removed := 0
	kept := make([][]Cell, 0, b.Height)
	for y := b.Height - 1; y >= 0; y-- {
		empty := true
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] != CellEmpty {
				empty = false
				break
			}
		}
		if !empty && removed < k {
			removed++
			continue
		}
		kept = append(kept, b.cells[y])
	}
	if removed == 0 {
		return 0
	}

	// kept is bottom-up; rebuild top-down with fresh rows on top.
	cells := make([][]Cell, 0, b.Height)
	for i := 0; i < removed; i++ {
		cells = append(cells, make([]Cell, b.Width))
	}
	for i := len(kept) - 1; i >= 0; i-- {
		cells = append(cells, kept[i])
	}
	b.cells = cells
	return removed
}

// SpawnRandomCells drops n garbage cells onto random column tops.
// Full columns are skipped. Returns cells placed.
func (b *Board) SpawnRandomCells(fx *Stream, n int) int {
	placed := 0
	for i := 0; i < n; i++ {
		x := fx.Intn(b.Width)
		y := b.columnTop(x) - 1
		if y < 0 {
			continue
		}
		b.cells[y][x] = CellGarbage
		placed++
	}
	return placed
}

// columnTop returns the y of the topmost occupied cell in a column, or
// Height when the column is empty.
func (b *Board) columnTop(x int) int {
	for y := 0; y < b.Height; y++ {
		if b.cells[y][x] != CellEmpty {
			return y
		}
	}
	return b.Height
}

// RotateRandomRow cyclically shifts one random non-empty row right by
// one cell. Returns 1 when a row was rotated.
func (b *Board) RotateRandomRow(fx *Stream) int {
	candidates := make([]int, 0, b.Height)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] != CellEmpty {
				candidates = append(candidates, y)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	y := candidates[fx.Intn(len(candidates))]
	row := b.cells[y]
	last := row[b.Width-1]
	copy(row[1:], row[:b.Width-1])
	row[0] = last
	return 1
}

// DeathCross clears the full row and column through a random occupied
// anchor, leaving the rest in place. Returns cells cleared.
func (b *Board) DeathCross(fx *Stream) int {
	occupied := b.occupiedCells()
	if len(occupied) == 0 {
		return 0
	}
	anchor := occupied[fx.Intn(len(occupied))]
	ax, ay := anchor[0], anchor[1]

	cleared := 0
	for x := 0; x < b.Width; x++ {
		if b.cells[ay][x] != CellEmpty {
			b.cells[ay][x] = CellEmpty
			cleared++
		}
	}
	for y := 0; y < b.Height; y++ {
		if b.cells[y][ax] != CellEmpty {
			b.cells[y][ax] = CellEmpty
			cleared++
		}
	}
	return cleared
}

// TagGoldCells relabels up to n random occupied cells as gold.
// Returns cells tagged.
func (b *Board) TagGoldCells(fx *Stream, n int) int {
	occupied := make([][2]int, 0)
	for _, c := range b.occupiedCells() {
		if b.cells[c[1]][c[0]] != CellGold {
			occupied = append(occupied, c)
		}
	}
	if len(occupied) == 0 {
		return 0
	}

	tagged := 0
	for i := 0; i < n && len(occupied) > 0; i++ {
		idx := fx.Intn(len(occupied))
		c := occupied[idx]
		b.cells[c[1]][c[0]] = CellGold
		occupied = append(occupied[:idx], occupied[idx+1:]...)
		tagged++
	}
	return tagged
}

// FillSmallHoles fills enclosed empty regions of at most maxRegion
// cells with garbage. Regions reachable from the open top and regions
// larger than maxRegion stay untouched. Returns cells filled.
func (b *Board) FillSmallHoles(maxRegion int) int {
	open := make([][]bool, b.Height)
	for y := range open {
		open[y] = make([]bool, b.Width)
	}

	// Flood the open air from every empty top-row cell.
	var queue [][2]int
	for x := 0; x < b.Width; x++ {
		if b.cells[0][x] == CellEmpty {
			open[0][x] = true
			queue = append(queue, [2]int{x, 0})
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := c[0]+d[0], c[1]+d[1]
			if nx < 0 || nx >= b.Width || ny < 0 || ny >= b.Height {
				continue
			}
			if open[ny][nx] || b.cells[ny][nx] != CellEmpty {
				continue
			}
			open[ny][nx] = true
			queue = append(queue, [2]int{nx, ny})
		}
	}

	seen := make([][]bool, b.Height)
	for y := range seen {
		seen[y] = make([]bool, b.Width)
	}

	filled := 0
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.cells[y][x] != CellEmpty || open[y][x] || seen[y][x] {
				continue
			}

			// Collect one enclosed region.
			region := [][2]int{{x, y}}
			seen[y][x] = true
			for i := 0; i < len(region); i++ {
				for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := region[i][0]+d[0], region[i][1]+d[1]
					if nx < 0 || nx >= b.Width || ny < 0 || ny >= b.Height {
						continue
					}
					if seen[ny][nx] || open[ny][nx] || b.cells[ny][nx] != CellEmpty {
						continue
					}
					seen[ny][nx] = true
					region = append(region, [2]int{nx, ny})
				}
			}

			if len(region) > maxRegion {
				continue
			}
			for _, c := range region {
				b.cells[c[1]][c[0]] = CellGarbage
				filled++
			}
		}
	}
	return filled
}

// DetonateCircle clears occupied cells within the given radius of the
// center. Returns cells cleared.
func (b *Board) DetonateCircle(cx, cy, radius int) int {
	cleared := 0
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			if b.cells[y][x] != CellEmpty {
				b.cells[y][x] = CellEmpty
				cleared++
			}
		}
	}
	return cleared
}

// DetonateCross clears occupied cells along the four arms of a cross
// centered at (cx, cy), arm cells in each direction. Returns cells
// cleared.
func (b *Board) DetonateCross(cx, cy, arm int) int {
	cleared := 0
	clear := func(x, y int) {
		if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
			return
		}
		if b.cells[y][x] != CellEmpty {
			b.cells[y][x] = CellEmpty
			cleared++
		}
	}

	clear(cx, cy)
	for i := 1; i <= arm; i++ {
		clear(cx+i, cy)
		clear(cx-i, cy)
		clear(cx, cy+i)
		clear(cx, cy-i)
	}
	return cleared
}

// cellsCopy returns the grid as plain ints for snapshots.
func (b *Board) cellsCopy() [][]int {
	out := make([][]int, b.Height)
	for y := 0; y < b.Height; y++ {
		out[y] = make([]int, b.Width)
		for x := 0; x < b.Width; x++ {
			out[y][x] = int(b.cells[y][x])
		}
	}
	return out
}
