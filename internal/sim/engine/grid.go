package engine

// Coord is a grid cell position.
type Coord struct {
	X int
	Y int
}

// Grid is a toroidal WxH lattice where each cell holds the agents
// currently occupying it. Multiple agents may share a cell.
type Grid struct {
	width  int
	height int
	cells  [][]*Agent
}

func NewGrid(width, height int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		cells:  make([][]*Agent, width*height),
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

func (g *Grid) index(x, y int) int { return y*g.width + x }

// Wrap maps arbitrary coordinates onto the torus.
func (g *Grid) Wrap(x, y int) (int, int) {
	x %= g.width
	if x < 0 {
		x += g.width
	}
	y %= g.height
	if y < 0 {
		y += g.height
	}
	return x, y
}

// CellAgents returns the occupants of the cell at (x, y), wrapped.
func (g *Grid) CellAgents(x, y int) []*Agent {
	x, y = g.Wrap(x, y)
	return g.cells[g.index(x, y)]
}

// Place inserts an agent that is not yet on the grid and records its
// position on the agent itself.
func (g *Grid) Place(a *Agent, x, y int) {
	x, y = g.Wrap(x, y)
	i := g.index(x, y)
	g.cells[i] = append(g.cells[i], a)
	a.X, a.Y = x, y
}

// Move relocates an agent to (x, y). Removal from the old cell and
// insertion into the new one both happen before Move returns, so the
// agent is never in zero or two cells.
func (g *Grid) Move(a *Agent, x, y int) {
	from := g.index(a.X, a.Y)
	cell := g.cells[from]
	for i, o := range cell {
		if o == a {
			g.cells[from] = append(cell[:i], cell[i+1:]...)
			break
		}
	}
	x, y = g.Wrap(x, y)
	to := g.index(x, y)
	g.cells[to] = append(g.cells[to], a)
	a.X, a.Y = x, y
}

// MooreNeighborhood returns the distinct cells horizontally, vertically
// and diagonally adjacent to (x, y), wrapping on both axes, with the
// center cell excluded. On grids of at least 3x3 this is always the
// 8 surrounding cells; on smaller grids wrapped duplicates collapse.
func (g *Grid) MooreNeighborhood(x, y int) []Coord {
	x, y = g.Wrap(x, y)
	center := Coord{X: x, Y: y}
	seen := map[Coord]bool{center: true}
	out := make([]Coord, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cx, cy := g.Wrap(x+dx, y+dy)
			c := Coord{X: cx, Y: cy}
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
