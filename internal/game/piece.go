package game

// PieceType identifies a falling piece shape.
type PieceType int

const (
	PieceI PieceType = iota
	PieceO
	PieceT
	PieceS
	PieceZ
	PieceJ
	PieceL
	// PieceMini is the two-cell domino queued by mini_blocks.
	PieceMini
	// PieceHollow is the 4x4 hollow shape queued by weird_shapes.
	PieceHollow
)

func (t PieceType) String() string {
	switch t {
	case PieceI:
		return "I"
	case PieceO:
		return "O"
	case PieceT:
		return "T"
	case PieceS:
		return "S"
	case PieceZ:
		return "Z"
	case PieceJ:
		return "J"
	case PieceL:
		return "L"
	case PieceMini:
		return "mini"
	case PieceHollow:
		return "hollow"
	default:
		return "?"
	}
}

// pieceShapes holds the spawn orientation of each type.
var pieceShapes = map[PieceType][][]bool{
	PieceI: {
		{true, true, true, true},
	},
	PieceO: {
		{true, true},
		{true, true},
	},
	PieceT: {
		{false, true, false},
		{true, true, true},
	},
	PieceS: {
		{false, true, true},
		{true, true, false},
	},
	PieceZ: {
		{true, true, false},
		{false, true, true},
	},
	PieceJ: {
		{true, false, false},
		{true, true, true},
	},
	PieceL: {
		{false, false, true},
		{true, true, true},
	},
	PieceMini: {
		{true, true},
	},
}

// hollowLayouts are the allowed weird_shapes variants: 4x4 frames with
// an open interior.
var hollowLayouts = [][][]bool{
	{
		{true, true, true, true},
		{true, false, false, true},
		{true, false, false, true},
		{true, true, true, true},
	},
	{
		{true, true, true, true},
		{true, false, false, true},
		{true, false, false, true},
		{true, true, false, true},
	},
	{
		{true, false, true, true},
		{true, false, false, true},
		{true, false, false, true},
		{true, true, true, true},
	},
}

// Piece is a falling piece with its current rotation baked into Shape.
type Piece struct {
	Type  PieceType
	Shape [][]bool
	X, Y  int
}

// NewPiece creates a piece of the given type in spawn orientation.
// Hollow pieces take their variant from the provided stream.
func NewPiece(t PieceType, fx *Stream) *Piece {
	var shape [][]bool
	if t == PieceHollow {
		variant := 0
		if fx != nil {
			variant = fx.Intn(len(hollowLayouts))
		}
		shape = hollowLayouts[variant]
	} else {
		shape = pieceShapes[t]
	}
	return &Piece{Type: t, Shape: copyShape(shape)}
}

// Clone deep-copies the piece.
func (p *Piece) Clone() *Piece {
	return &Piece{Type: p.Type, Shape: copyShape(p.Shape), X: p.X, Y: p.Y}
}

// Width returns the shape width in cells.
func (p *Piece) Width() int {
	if len(p.Shape) == 0 {
		return 0
	}
	return len(p.Shape[0])
}

// Height returns the shape height in cells.
func (p *Piece) Height() int {
	return len(p.Shape)
}

// RotatedShape returns the shape rotated clockwise once.
func (p *Piece) RotatedShape() [][]bool {
	rows := len(p.Shape)
	cols := len(p.Shape[0])
	out := make([][]bool, cols)
	for x := 0; x < cols; x++ {
		out[x] = make([]bool, rows)
		for y := 0; y < rows; y++ {
			out[x][y] = p.Shape[rows-1-y][x]
		}
	}
	return out
}

// Cell returns the board cell label pieces of this type lock as.
func (t PieceType) Cell() Cell {
	switch t {
	case PieceI:
		return CellI
	case PieceO:
		return CellO
	case PieceT:
		return CellT
	case PieceS:
		return CellS
	case PieceZ:
		return CellZ
	case PieceJ:
		return CellJ
	case PieceL:
		return CellL
	case PieceMini:
		return CellMini
	case PieceHollow:
		return CellHollow
	default:
		return CellGarbage
	}
}

func copyShape(shape [][]bool) [][]bool {
	out := make([][]bool, len(shape))
	for i, row := range shape {
		out[i] = make([]bool, len(row))
		copy(out[i], row)
	}
	return out
}
