// Package taxonomy describes the fixed set of calligraphy grid layouts a
// submitted page may be written on.
package taxonomy

// GridType identifies the ruled grid layout printed on a practice sheet.
type GridType string

const (
	GridTian  GridType = "TIAN"  // 田字格
	GridMi    GridType = "MI"    // 米字格
	GridHui   GridType = "HUI"   // 回字格
	GridPlain GridType = "PLAIN" // unruled
)

// Template describes one selectable practice-sheet layout: (rows, cols,
// headerRatio), returned by GET /templates and referenced by whole-page
// grading requests to locate grid lines when cropping individual
// characters.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	GridType    GridType `json:"gridType"`
	GridRows    int      `json:"gridRows"`
	GridCols    int      `json:"gridCols"`
	HeaderRatio float64  `json:"headerRatio"` // in [0, 0.3]
}

// Catalog is the fixed set of templates the service recognizes.
var Catalog = []Template{
	{ID: "tian-8x4", Name: "田字格 8x4", GridType: GridTian, GridRows: 8, GridCols: 4, HeaderRatio: 0.05},
	{ID: "mi-8x4", Name: "米字格 8x4", GridType: GridMi, GridRows: 8, GridCols: 4, HeaderRatio: 0.05},
	{ID: "hui-6x4", Name: "回字格 6x4", GridType: GridHui, GridRows: 6, GridCols: 4, HeaderRatio: 0.08},
	{ID: "plain-10x6", Name: "无格 10x6", GridType: GridPlain, GridRows: 10, GridCols: 6, HeaderRatio: 0},
}

// Find returns the template with the given ID, or ok=false.
func Find(id string) (Template, bool) {
	for _, t := range Catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
