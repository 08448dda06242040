package gridmap

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TileFloor = '.'
	TileWall  = '#'
	TileSpawn = 'S'
)

type Cell struct{ X, Y int }

// Map is a static 2D tile grid. Y grows downward (row index).
type Map struct {
	Name   string
	Width  int
	Height int

	solid  []bool
	spawns []Cell
}

type fileV1 struct {
	Name string   `yaml:"name"`
	Rows []string `yaml:"rows"`
}

func Load(path string) (Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Map{}, err
	}
	m, err := Parse(raw)
	if err != nil {
		return Map{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func Parse(raw []byte) (Map, error) {
	var f fileV1
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Map{}, fmt.Errorf("map yaml: %w", err)
	}
	return FromRows(f.Name, f.Rows)
}

// FromRows builds a map from text rows. Rows shorter than the widest row
// are padded with walls.
func FromRows(name string, rows []string) (Map, error) {
	if len(rows) == 0 {
		return Map{}, fmt.Errorf("map %q has no rows", name)
	}
	width := 0
	for _, r := range rows {
		if n := len(strings.TrimRight(r, " ")); n > width {
			width = n
		}
	}
	if width == 0 {
		return Map{}, fmt.Errorf("map %q has zero width", name)
	}
	m := Map{
		Name:   name,
		Width:  width,
		Height: len(rows),
		solid:  make([]bool, width*len(rows)),
	}
	for y, r := range rows {
		r = strings.TrimRight(r, " ")
		for x := 0; x < width; x++ {
			ch := byte(TileWall)
			if x < len(r) {
				ch = r[x]
			}
			switch ch {
			case TileFloor:
			case TileSpawn:
				m.spawns = append(m.spawns, Cell{X: x, Y: y})
			case TileWall:
				m.solid[y*width+x] = true
			default:
				return Map{}, fmt.Errorf("map %q: unknown tile %q at (%d,%d)", name, ch, x, y)
			}
		}
	}
	return m, nil
}

// Open returns an all-floor map, handy for tests.
func Open(width, height int) Map {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return Map{Name: "open", Width: width, Height: height, solid: make([]bool, width*height)}
}

func (m Map) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// Solid reports whether (x,y) blocks movement; out-of-bounds cells are solid.
func (m Map) Solid(x, y int) bool {
	if !m.InBounds(x, y) {
		return true
	}
	return m.solid[y*m.Width+x]
}

func (m *Map) SetSolid(x, y int, solid bool) {
	if !m.InBounds(x, y) {
		return
	}
	m.solid[y*m.Width+x] = solid
}

func (m Map) Spawns() []Cell {
	out := make([]Cell, len(m.spawns))
	copy(out, m.spawns)
	return out
}

// Rows renders the map back to its text form.
func (m Map) Rows() []string {
	spawn := make(map[Cell]bool, len(m.spawns))
	for _, c := range m.spawns {
		spawn[c] = true
	}
	out := make([]string, m.Height)
	var b strings.Builder
	for y := 0; y < m.Height; y++ {
		b.Reset()
		for x := 0; x < m.Width; x++ {
			switch {
			case m.solid[y*m.Width+x]:
				b.WriteByte(TileWall)
			case spawn[Cell{X: x, Y: y}]:
				b.WriteByte(TileSpawn)
			default:
				b.WriteByte(TileFloor)
			}
		}
		out[y] = b.String()
	}
	return out
}
