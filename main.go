package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"panotracker/config"
	"panotracker/input"
	"panotracker/recording"
	"panotracker/synth"
	"panotracker/telemetry"
	"panotracker/tracking"
	"panotracker/types"
	"panotracker/ui"
)

// frameSource is anything the loop can pull frames from.
type frameSource interface {
	Read(dst *gocv.Mat) bool
	Close() error
}

// syntheticSource pans a camera across a generated panorama, one step per
// frame, so the tracker can be watched without hardware.
type syntheticSource struct {
	pano   gocv.Mat
	camera *synth.Camera
	step   int
}

func newSyntheticSource() *syntheticSource {
	pano := synth.Panorama(2400, 480, 1)
	return &syntheticSource{pano: pano, camera: synth.NewCamera(pano, 640, 360), step: 2}
}

func (s *syntheticSource) Read(dst *gocv.Mat) bool {
	frame := s.camera.FrameBGR()
	defer frame.Close()
	frame.CopyTo(dst)
	s.camera.Pan(s.step, 0)
	return true
}

func (s *syntheticSource) Close() error {
	return s.pano.Close()
}

// openSource opens a video file, the synthetic panorama or a camera device.
func openSource(source string) (frameSource, bool, error) {
	if source == "synthetic" {
		return newSyntheticSource(), true, nil
	}
	if _, err := os.Stat(source); err == nil {
		capture, err := gocv.VideoCaptureFile(source)
		return capture, true, err
	}
	capture, err := gocv.VideoCaptureDevice(parseCameraID(source))
	return capture, false, err
}

func parseCameraID(arg string) int {
	var id int
	fmt.Sscanf(arg, "%d", &id)
	return id
}

func main() {
	settingsPath := flag.String("config", "", "YAML settings file, reloaded when it changes")
	source := flag.String("source", "0", "camera ID, video file or \"synthetic\"")
	outDir := flag.String("out", ".", "directory for recordings, snapshots and plots")
	flag.Parse()

	trackingConfig := types.DefaultTrackingConfig()
	state := types.NewAppState(trackingConfig.HistoryLimit)
	debug := types.NewDebugLogger(state, types.DefaultUIConfig().MaxDebugLogs, zerolog.ConsoleWriter{Out: os.Stderr})
	logger := debug.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := config.Default()
	reloads := make(chan config.Settings, 1)
	if *settingsPath != "" {
		var err error
		if settings, err = config.Load(*settingsPath, logger); err != nil {
			logger.Fatal().Err(err).Msg("loading settings")
		}
		err = config.Watch(ctx, *settingsPath, logger, func(s config.Settings) {
			// Only the latest reload matters.
			select {
			case <-reloads:
			default:
			}
			reloads <- s
		})
		if err != nil {
			logger.Warn().Err(err).Msg("settings will not be reloaded")
		}
	}

	tr, err := tracking.New(settings, tracking.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("creating tracker")
	}
	defer tr.Close()

	capture, autoStart, err := openSource(*source)
	if err != nil {
		logger.Fatal().Err(err).Str("source", *source).Msg("opening source")
	}
	defer capture.Close()

	panoWindow := gocv.NewWindow("Panorama")
	defer panoWindow.Close()
	cameraWindow := gocv.NewWindow("Camera")
	defer cameraWindow.Close()

	videoConfig := types.DefaultVideoConfig()
	videoConfig.Dir = *outDir
	uiConfig := types.DefaultUIConfig()
	ui.PrintStartupInstructions()
	logger.Info().Str("session", tr.SessionID()).Str("source", *source).Msg("starting")

	frame := gocv.NewMat()
	defer frame.Close()
	view := gocv.NewMat()
	defer view.Close()

	state.InitRequested = autoStart
	for ctx.Err() == nil {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			logger.Info().Msg("source exhausted")
			break
		}
		state.FrameCount++

		select {
		case s := <-reloads:
			if err := tr.ApplySettings(s); err != nil {
				logger.Error().Err(err).Msg("rejecting reloaded settings")
			} else {
				logger.Info().Msg("settings reloaded")
			}
		default:
		}

		track(tr, frame, state, trackingConfig, logger)

		rendered := tr.RenderMapView(input.MapLevel(state, tr.Settings()), tracking.RenderOptions{
			Grid:      state.ShowGrid,
			Features:  state.ShowFeatures,
			Viewpoint: true,
			Follow:    true,
		})
		if !rendered.Empty() {
			rendered.CopyTo(&view)
			ui.RenderFrame(&rendered, state, ui.StatusOf(tr), uiConfig, logger)
			if err := recording.WriteFrame(state, rendered); err != nil {
				logger.Error().Err(err).Msg("writing video frame")
			}
			panoWindow.IMShow(rendered)
		}
		rendered.Close()
		cameraWindow.IMShow(frame)

		key := panoWindow.WaitKey(1)
		quit := input.ProcessInput(key, state, input.Context{
			Tracker:  tr,
			View:     view,
			Video:    videoConfig,
			Tracking: trackingConfig,
			OutDir:   *outDir,
			Logger:   logger,
		})
		if quit {
			break
		}
	}

	recording.CleanupRecording(state, logger)
	if state.History.Len() > 0 {
		paths, err := recording.SavePlots(state.History, *outDir, tr.SessionID())
		if err != nil {
			logger.Error().Err(err).Msg("saving plots")
			return
		}
		logger.Info().Strs("files", paths).Msg("plots saved")
	}
}

// track initializes the panorama when asked to and otherwise feeds frame to
// the tracker. A tracker that stays lost for too long starts over.
func track(tr *tracking.Tracker, frame gocv.Mat, state *types.AppState, cfg types.TrackingConfig, logger zerolog.Logger) {
	if state.InitRequested {
		state.InitRequested = false
		if err := tr.Initialize(frame); err != nil {
			logger.Error().Err(err).Msg("starting panorama")
			return
		}
		state.LostFrames = 0
		return
	}
	if !tr.Initialized() {
		return
	}

	if err := tr.ProcessFrame(frame); err != nil {
		logger.Error().Err(err).Int("frame", state.FrameCount).Msg("processing frame")
		return
	}

	o := tr.Orientation()
	state.History.Add(telemetry.Sample{
		Frame:     state.FrameCount,
		Yaw:       o.Yaw,
		Pitch:     o.Pitch,
		Roll:      o.Roll,
		Quality:   tr.Quality(),
		Deviation: tr.Deviation(),
	})

	if tr.State() != tracking.Relocalizing {
		state.LostFrames = 0
		return
	}
	state.LostFrames++
	if cfg.MaxLostFrames > 0 && state.LostFrames >= cfg.MaxLostFrames {
		logger.Warn().Int("lost_frames", state.LostFrames).Msg("tracking lost for too long, starting a new panorama")
		tr.Reset()
		state.LostFrames = 0
		state.InitRequested = true
	}
}
