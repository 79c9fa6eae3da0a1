// Package pipeline constructs and drives the real-time GStreamer media
// pipeline that muxes captured video (and optionally audio) into the
// ring buffer.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog"

	"github.com/konyogony/wayclip/pkg/config"
	"github.com/konyogony/wayclip/pkg/ringbuffer"
)

var gstInitOnce sync.Once

// Init initializes the GStreamer library. Safe to call multiple times.
func Init() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// CheckElements reports which of the named GStreamer element factories are
// not installed, for the daemon's startup/diagnostic "check" path.
func CheckElements(names ...string) (missing []string) {
	Init()
	for _, name := range names {
		if gst.Find(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// RequiredElements is the element set the pipeline string below depends on.
var RequiredElements = []string{
	"pipewiresrc", "videoconvert", "videoscale", "videorate", "x264enc",
	"h264parse", "matroskamux", "queue", "appsink",
}

// AudioElements are additionally required when either audio branch is enabled.
var AudioElements = []string{"audiomixer", "audioconvert", "audioresample", "opusenc", "opusparse"}

// Pipeline wraps a constructed, running GStreamer pipeline whose muxed
// output is pushed into a RingBuffer.
type Pipeline struct {
	logger zerolog.Logger

	pipeline *gst.Pipeline
	sink     *app.Sink
	ring     *ringbuffer.RingBuffer

	stopOnce sync.Once
}

// Construct builds the pipeline description for cfg, binds it to the given
// capture file descriptor and PipeWire stream node, and wires its sink
// callback to push muxed chunks into ring.
func Construct(cfg config.PipelineConfig, captureFD int, streamNode uint32, ring *ringbuffer.RingBuffer, logger zerolog.Logger) (*Pipeline, error) {
	Init()

	desc := buildPipelineString(cfg, captureFD, streamNode)
	logger.Debug().Str("pipeline", desc).Msg("constructed pipeline description")

	gstPipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}

	elem, err := gstPipeline.GetElementByName("muxsink")
	if err != nil {
		gstPipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("get muxsink element: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		gstPipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("muxsink element is not an appsink")
	}

	if cfg.IncludeBg || cfg.IncludeMic {
		if mixer, err := gstPipeline.GetElementByName("mix"); err == nil {
			if cfg.IncludeBg {
				setSinkVolume(mixer, "sink_0", cfg.BgVolume)
			}
			if cfg.IncludeMic {
				setSinkVolume(mixer, "sink_1", cfg.MicVolume)
			}
		}
	}

	p := &Pipeline{logger: logger, pipeline: gstPipeline, sink: sink, ring: ring}

	sink.SetProperty("emit-signals", true)
	sink.SetProperty("max-buffers", uint(5))
	sink.SetProperty("drop", true)
	sink.SetProperty("sync", false)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: p.onNewSample})

	return p, nil
}

// setSinkVolume is a best-effort property set; an audiomixer request pad
// that hasn't been fully linked yet (or a teacher pipeline revision without
// per-pad volume) simply leaves the default gain in place.
func setSinkVolume(mixer *gst.Element, padName string, volume float64) {
	pad := mixer.GetStaticPad(padName)
	if pad == nil {
		return
	}
	pad.SetProperty("volume", volume)
}

func buildPipelineString(cfg config.PipelineConfig, captureFD int, streamNode uint32) string {
	var b strings.Builder

	fmt.Fprintf(&b, "pipewiresrc fd=%d path=%d ! queue leaky=downstream max-size-buffers=5 ! ", captureFD, streamNode)
	fmt.Fprintf(&b, "videoconvert ! videoscale ! video/x-raw,width=%d,height=%d,format=NV12 ! ", cfg.Width, cfg.Height)
	fmt.Fprintf(&b, "videorate ! video/x-raw,framerate=%d/1 ! ", cfg.FPS)
	fmt.Fprintf(&b, "x264enc bitrate=%d tune=zerolatency ! h264parse ! queue ! mux.video_0 ", cfg.BitrateKbps)

	b.WriteString("matroskamux name=mux streamable=true ! appsink name=muxsink ")

	if cfg.IncludeBg || cfg.IncludeMic {
		b.WriteString("audiomixer name=mix ! audioconvert ! audio/x-raw,channels=2,rate=48000 ! opusenc ! opusparse ! queue ! mux.audio_0 ")
		if cfg.IncludeBg && cfg.BgNode != "" {
			fmt.Fprintf(&b, "pipewiresrc target-object=%s ! queue ! audioconvert ! audio/x-raw,channels=2,rate=48000 ! audioresample ! mix.sink_0 ", cfg.BgNode)
		}
		if cfg.IncludeMic && cfg.MicNode != "" {
			fmt.Fprintf(&b, "pipewiresrc target-object=%s ! queue ! audioconvert ! audio/x-raw,channels=2,rate=48000 ! audioresample ! mix.sink_1 ", cfg.MicNode)
		}
	}

	return b.String()
}

// Start transitions the pipeline to the Playing state and starts the bus
// watcher. On failure the pipeline is transitioned to Null.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		p.pipeline.SetState(gst.StateNull)
		return fmt.Errorf("set pipeline playing: %w", err)
	}
	go p.watchBus(ctx)
	return nil
}

// Stop transitions the pipeline to Null. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.pipeline != nil {
			p.pipeline.SetState(gst.StateNull)
		}
	})
}

func (p *Pipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	data := make([]byte, len(mapInfo.Bytes()))
	copy(data, mapInfo.Bytes())
	buffer.Unmap()

	isHeader := buffer.HasFlags(gst.BufferFlagHeader)

	var pts *time.Duration
	if d := buffer.PresentationTimestamp().AsDuration(); d != nil {
		pts = d
	}

	if !p.ring.TryLock() {
		p.logger.Warn().Msg("failed to acquire lock on ring buffer, frame dropped")
		return gst.FlowOK
	}
	p.ring.PushLocked(data, isHeader, pts)
	p.ring.Unlock()

	return gst.FlowOK
}

func (p *Pipeline) watchBus(ctx context.Context) {
	bus := p.pipeline.GetPipelineBus()
	if bus == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			p.logger.Info().Msg("pipeline reached end of stream")
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			if gerr == nil {
				return
			}
			debug := gerr.DebugString()
			p.logger.Error().Str("element", msg.Source()).Str("debug", debug).Msg(gerr.Error())
			text := strings.ToLower(gerr.Error() + " " + debug)
			if strings.Contains(text, "format negotiation") ||
				strings.Contains(text, "unhandled format") {
				p.logger.Warn().Msg("hint: a capture or mixer element may not support the negotiated format")
			}
			return
		case gst.MessageWarning:
			if gwarn := msg.ParseWarning(); gwarn != nil {
				p.logger.Warn().Msg(gwarn.Error())
			}
		case gst.MessageStateChanged:
			if msg.Source() == p.pipeline.GetName() {
				p.logger.Debug().Msg("pipeline state changed")
			}
		}
	}
}
