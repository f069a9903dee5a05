package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-deepnote/dsp/core"
)

// Renderer produces one block of stereo audio starting at audio time t0.
// left and right have equal length and are zeroed before the call.
type Renderer interface {
	RenderBlock(left, right []float64, t0 float64)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(left, right []float64, t0 float64)

// RenderBlock calls f.
func (f RendererFunc) RenderBlock(left, right []float64, t0 float64) { f(left, right, t0) }

// Context is the audio clock plus the block-based pull renderer shared by
// all sinks.
type Context struct {
	cfg core.ProcessorConfig

	frames atomic.Int64
	render atomic.Pointer[rendererBox]

	mu      sync.Mutex
	left    []float64
	right   []float64
	pos     int
	scratch [][2]float64
}

type rendererBox struct{ r Renderer }

// NewContext creates a context with the given processor options.
func NewContext(opts ...core.ProcessorOption) *Context {
	cfg := core.ApplyProcessorOptions(opts...)
	c := &Context{
		cfg:   cfg,
		left:  make([]float64, cfg.BlockSize),
		right: make([]float64, cfg.BlockSize),
	}
	c.pos = cfg.BlockSize
	return c
}

// SampleRate returns the sample rate in Hz.
func (c *Context) SampleRate() float64 { return c.cfg.SampleRate }

// BlockSize returns the number of frames rendered per block.
func (c *Context) BlockSize() int { return c.cfg.BlockSize }

// Config returns the processor configuration.
func (c *Context) Config() core.ProcessorConfig { return c.cfg }

// CurrentTime returns the audio time in seconds. It is safe to call from
// any goroutine.
func (c *Context) CurrentTime() float64 {
	return float64(c.frames.Load()) / c.cfg.SampleRate
}

// Frames returns the number of frames rendered so far.
func (c *Context) Frames() int64 { return c.frames.Load() }

// SetRenderer installs r. A nil renderer renders silence.
func (c *Context) SetRenderer(r Renderer) {
	if r == nil {
		c.render.Store(nil)
		return
	}
	c.render.Store(&rendererBox{r: r})
}

// Render fills frames with stereo samples, rendering blocks as needed.
func (c *Context) Render(frames [][2]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range frames {
		if c.pos >= len(c.left) {
			c.nextBlock()
		}
		frames[i][0] = c.left[c.pos]
		frames[i][1] = c.right[c.pos]
		c.pos++
	}
}

// RenderBlocks renders n whole blocks into left and right, which must hold
// n*BlockSize samples. It is the offline path used for analysis.
func (c *Context) RenderBlocks(left, right []float64, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bs := c.cfg.BlockSize
	for b := range n {
		c.nextBlock()
		copy(left[b*bs:(b+1)*bs], c.left)
		copy(right[b*bs:(b+1)*bs], c.right)
	}
	c.pos = bs
}

func (c *Context) nextBlock() {
	core.Zero(c.left)
	core.Zero(c.right)

	t0 := c.CurrentTime()
	if box := c.render.Load(); box != nil {
		box.r.RenderBlock(c.left, c.right, t0)
	}
	c.frames.Add(int64(len(c.left)))
	c.pos = 0
}

// Read implements io.Reader with interleaved float32 little-endian stereo,
// the format the oto sink opens the device with.
func (c *Context) Read(p []byte) (int, error) {
	const frameBytes = 8
	n := len(p) / frameBytes
	if n == 0 {
		return 0, nil
	}

	c.scratch = ensureFrames(c.scratch, n)
	frames := c.scratch[:n]
	c.Render(frames)

	for i, fr := range frames {
		binary.LittleEndian.PutUint32(p[i*frameBytes:], math.Float32bits(clip(fr[0])))
		binary.LittleEndian.PutUint32(p[i*frameBytes+4:], math.Float32bits(clip(fr[1])))
	}
	return n * frameBytes, nil
}

// Stream implements beep.Streamer. The context never drains.
func (c *Context) Stream(samples [][2]float64) (int, bool) {
	c.Render(samples)
	return len(samples), true
}

// Err implements beep.Streamer.
func (c *Context) Err() error { return nil }

func ensureFrames(buf [][2]float64, n int) [][2]float64 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([][2]float64, n)
}

func clip(v float64) float32 {
	return float32(core.Clamp(v, -1, 1))
}
