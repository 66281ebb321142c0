package mosaic

// Mosaic assembly
//
// A large area is partitioned into a gridN x gridN grid of equal sub-boxes in
// row-major order. Every cell is acquired independently through the imagery
// client, so a single provider outage degrades one tile, never the mosaic.
// Failed cells become black placeholder tiles of the configured size, which
// keeps the output raster dimensions a pure function of grid size and tile
// size: tileSize*gridN pixels on both axes, regardless of fetch outcomes.

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"log/slog"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
	"github.com/AlfonsoCifuentes/riskmap-vision/observability"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// DefaultTileSize is the per-tile edge length in pixels.
const DefaultTileSize = 512

// TileMeta records the outcome of one cell's acquisition for diagnostics and
// downstream auditing.
type TileMeta struct {
	Row      int       `json:"row"`
	Col      int       `json:"col"`
	BBox     geo.BBox  `json:"bbox"`
	Center   geo.Point `json:"center"`
	Source   string    `json:"source,omitempty"`
	ByteSize int       `json:"byteSize"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}

// Result is one assembled mosaic.
type Result struct {
	Image      *image.RGBA `json:"-"`
	GridN      int         `json:"gridN"`
	TileSize   int         `json:"tileSize"`
	Tiles      []TileMeta  `json:"tiles"`
	TotalBytes int         `json:"totalBytes"`
}

// Assembler stitches areas from independently fetched tiles.
type Assembler struct {
	client      *imagery.Client
	tileSize    int
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithTileSize overrides the per-tile pixel size.
func WithTileSize(px int) Option {
	return func(a *Assembler) {
		if px > 0 {
			a.tileSize = px
		}
	}
}

// WithConcurrency bounds parallel tile fetches.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// NewAssembler builds an assembler over an acquisition client.
func NewAssembler(client *imagery.Client, opts ...Option) *Assembler {
	a := &Assembler{
		client:      client,
		tileSize:    DefaultTileSize,
		concurrency: 4,
		logger:      utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble partitions area into gridN x gridN cells, acquires each cell and
// stitches the tiles into one raster. The returned raster is always
// tileSize*gridN pixels square.
func (a *Assembler) Assemble(ctx context.Context, area geo.BBox, gridN int) (*Result, error) {
	if gridN < 1 {
		gridN = 1
	}

	cells := area.SplitGrid(gridN)
	tiles := make([]TileMeta, len(cells))
	images := make([]image.Image, len(cells))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)

	for idx, cell := range cells {
		idx, cell := idx, cell
		group.Go(func() error {
			meta := TileMeta{
				Row:    idx / gridN,
				Col:    idx % gridN,
				BBox:   cell,
				Center: cell.Center(),
			}

			req := imagery.NewRequestForBBox(cell)
			req.Width = a.tileSize
			req.Height = a.tileSize

			acquired, err := a.client.Acquire(groupCtx, req)
			if err != nil {
				meta.Error = err.Error()
				tiles[idx] = meta
				a.countTile("placeholder")
				a.logger.Warn("tile acquisition failed, using placeholder",
					slog.Int("row", meta.Row), slog.Int("col", meta.Col),
					slog.Any("error", err))
				return nil
			}

			decoded, _, err := image.Decode(bytes.NewReader(acquired.Data))
			if err != nil {
				meta.Error = err.Error()
				tiles[idx] = meta
				a.countTile("placeholder")
				return nil
			}

			meta.Source = acquired.Source
			meta.ByteSize = len(acquired.Data)
			meta.Success = true
			tiles[idx] = meta
			images[idx] = decoded
			a.countTile("ok")
			return nil
		})
	}

	// Tile workers only report through the tiles slice; the group error is
	// always nil unless the context itself was cancelled.
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		GridN:    gridN,
		TileSize: a.tileSize,
		Tiles:    tiles,
		Image:    a.stitch(images, gridN),
	}
	for _, tile := range tiles {
		result.TotalBytes += tile.ByteSize
	}
	return result, nil
}

// stitch concatenates tiles along columns within a row, then stacks rows.
// Missing tiles stay black.
func (a *Assembler) stitch(images []image.Image, gridN int) *image.RGBA {
	size := a.tileSize * gridN
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for idx, tile := range images {
		if tile == nil {
			continue
		}
		row := idx / gridN
		col := idx % gridN
		dst := image.Rect(col*a.tileSize, row*a.tileSize, (col+1)*a.tileSize, (row+1)*a.tileSize)

		if tile.Bounds().Dx() == a.tileSize && tile.Bounds().Dy() == a.tileSize {
			draw.Draw(canvas, dst, tile, tile.Bounds().Min, draw.Src)
			continue
		}
		// Provider returned off-size bytes; rescale into the cell.
		xdraw.ApproxBiLinear.Scale(canvas, dst, tile, tile.Bounds(), xdraw.Src, nil)
	}
	return canvas
}

func (a *Assembler) countTile(outcome string) {
	if a.metrics != nil {
		a.metrics.MosaicTiles.WithLabelValues(outcome).Inc()
	}
}
