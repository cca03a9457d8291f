package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/musiksnip/internal/config"
	"github.com/petems/musiksnip/internal/encode"
	"github.com/petems/musiksnip/internal/logging"
	"github.com/petems/musiksnip/internal/session"
)

// timerChoices are the auto-stop durations offered in the menu, in minutes.
// 0 disables the timer.
var timerChoices = []int{0, 1, 5, 15, 30, 60}

type UI struct {
	session *session.Session
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStart      *systray.MenuItem
	mPause      *systray.MenuItem
	mStop       *systray.MenuItem
	mDevices    *systray.MenuItem
	mQuality    *systray.MenuItem
	mTimer      *systray.MenuItem
	mCopyPath   *systray.MenuItem
	mOpenFolder *systray.MenuItem
}

func New(sess *session.Session, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		session: sess,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTitle("🎙 ⚫")
	systray.SetTooltip("System audio recorder")

	u.mStart = systray.AddMenuItem("Start Recording", "Begin a new recording")
	u.mPause = systray.AddMenuItem("Pause", "Pause the recording")
	u.mStop = systray.AddMenuItem("Stop && Save", "Stop and encode to MP3")
	u.mPause.Disable()
	u.mStop.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Audio Device", "Select capture device")
	u.buildDeviceMenu()

	u.mQuality = systray.AddMenuItem("MP3 Quality", "Select bitrate preset")
	u.buildQualityMenu()

	u.mTimer = systray.AddMenuItem("Timer", "Auto-stop after a duration")
	u.buildTimerMenu()

	systray.AddSeparator()
	u.mCopyPath = systray.AddMenuItem("Copy Last Recording Path", "Copy the saved file path")
	u.mOpenFolder = systray.AddMenuItem("Open Recordings Folder", "Show saved recordings")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Musiksnip")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.handleEvents(mLogs, mAbout, mQuit)
	go u.refreshLoop()
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStart.ClickedCh:
			u.startRecording()
		case <-u.mPause.ClickedCh:
			u.togglePause()
		case <-u.mStop.ClickedCh:
			u.stopRecording()
		case <-u.mCopyPath.ClickedCh:
			u.copyLastPath()
		case <-u.mOpenFolder.ClickedCh:
			u.openFolder(u.cfg.OutputDir)
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// Toggle starts a recording when idle and stops it otherwise. This is the
// hotkey action; it drives the same paths as the menu items.
func (u *UI) Toggle() {
	if u.session.Active() {
		u.stopRecording()
	} else {
		u.startRecording()
	}
}

func (u *UI) startRecording() {
	preset, err := encode.ParsePreset(u.cfg.Encode.Preset)
	if err != nil {
		u.log.Error().Err(err).Str("preset", u.cfg.Encode.Preset).Msg("Configured preset is invalid")
		return
	}
	opts := session.Options{
		DeviceID: u.cfg.Audio.DeviceID,
		Dir:      u.cfg.OutputDir,
		Timer:    time.Duration(u.cfg.TimerSeconds) * time.Second,
		Preset:   preset,
	}
	if err := u.session.Start(opts); err != nil {
		u.log.Error().Err(err).Msg("Failed to start recording")
		return
	}
	u.mStart.Disable()
	u.mPause.Enable()
	u.mStop.Enable()
}

func (u *UI) togglePause() {
	st := u.session.Status()
	switch st.State {
	case session.StateRecording:
		if err := u.session.Pause(); err != nil {
			u.log.Error().Err(err).Msg("Failed to pause")
			return
		}
		u.mPause.SetTitle("Resume")
	case session.StatePaused:
		if err := u.session.Resume(); err != nil {
			u.log.Error().Err(err).Msg("Failed to resume")
			return
		}
		u.mPause.SetTitle("Pause")
	}
}

func (u *UI) stopRecording() {
	// Stop blocks through encoding, keep the event loop responsive.
	go func() {
		if err := u.session.Stop(); err != nil {
			u.log.Error().Err(err).Msg("Failed to stop recording")
		}
	}()
}

func (u *UI) copyLastPath() {
	st := u.session.Status()
	if st.Result == nil || st.Result.Err != nil {
		u.log.Info().Msg("No saved recording to copy")
		return
	}
	if err := clipboard.WriteAll(st.Result.Path); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy path to clipboard")
		return
	}
	u.log.Info().Str("path", st.Result.Path).Msg("Copied recording path")
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.session.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
	}

	deviceItems := make(map[string]*systray.MenuItem)

	// System-default sentinel first; it always works even when enumeration
	// comes back empty.
	defItem := u.mDevices.AddSubMenuItem("System Default", "")
	if u.cfg.Audio.DeviceID == "" {
		defItem.Check()
	}
	deviceItems[""] = defItem

	if len(devices) == 0 {
		none := u.mDevices.AddSubMenuItem("No capture devices found", "")
		none.Disable()
		u.log.Warn().Msg("No capture devices found, only the system default is offered")
	}

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID {
			item.Check()
		}
		deviceItems[dev.ID] = item
	}

	for id, item := range deviceItems {
		go func(deviceID string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for other, itm := range deviceItems {
					if other != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.cfg.Audio.DeviceID = deviceID
				u.cfg.Save()
				u.log.Info().Str("device", deviceID).Msg("Changed audio device")
			}
		}(id, item)
	}
}

func (u *UI) buildQualityMenu() {
	qualityItems := make(map[encode.Preset]*systray.MenuItem)

	for _, p := range encode.Presets() {
		item := u.mQuality.AddSubMenuItem(p.Label(), "")
		if string(p) == u.cfg.Encode.Preset {
			item.Check()
		}
		qualityItems[p] = item

		go func(preset encode.Preset, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for other, itm := range qualityItems {
					if other != preset {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.cfg.Encode.Preset = string(preset)
				u.cfg.Save()
				u.log.Info().Str("preset", string(preset)).Msg("Changed MP3 quality")
			}
		}(p, item)
	}
}

func (u *UI) buildTimerMenu() {
	timerItems := make(map[int]*systray.MenuItem)

	for _, mins := range timerChoices {
		item := u.mTimer.AddSubMenuItem(timerLabel(mins), "")
		if mins*60 == u.cfg.TimerSeconds {
			item.Check()
		}
		timerItems[mins] = item

		go func(minutes int, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for other, itm := range timerItems {
					if other != minutes {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.cfg.TimerSeconds = minutes * 60
				u.cfg.Save()
				u.log.Info().Int("minutes", minutes).Msg("Changed recording timer")
			}
		}(mins, item)
	}
}

// refreshLoop polls the session once per second and mirrors its state into
// the tray title and menu items.
func (u *UI) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		st := u.session.Status()
		systray.SetTitle(fmt.Sprintf("🎙 %s %s", statusEmoji(st.State), formatClock(st.Elapsed)))

		switch st.State {
		case session.StateRecording, session.StatePaused:
			if st.Remaining > 0 {
				systray.SetTooltip(fmt.Sprintf("Recording, %s remaining", formatClock(st.Remaining)))
			} else {
				systray.SetTooltip("Recording")
			}
		case session.StateStopping, session.StateFinalizing:
			systray.SetTooltip("Saving recording…")
		default:
			systray.SetTooltip("System audio recorder")
			u.mStart.Enable()
			u.mPause.Disable()
			u.mPause.SetTitle("Pause")
			u.mStop.Disable()
		}
	}
}

func (u *UI) openFolder(path string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open folder")
	}
}

func (u *UI) openLogs() {
	u.openFolder(logging.LogPath())
}

func (u *UI) showAbout() {
	fmt.Printf("Musiksnip %s (%s)\nSystem audio recorder\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

// formatClock renders a duration as MM:SS; minutes keep counting past 59.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// statusEmoji returns the tray indicator for the session state
func statusEmoji(state session.State) string {
	switch state {
	case session.StateRecording:
		return "🔴"
	case session.StatePaused:
		return "⏸"
	case session.StateStopping, session.StateFinalizing:
		return "🟡"
	case session.StateFailed:
		return "⚠️"
	default:
		return "⚫"
	}
}

// timerLabel renders a timer menu entry.
func timerLabel(minutes int) string {
	if minutes == 0 {
		return "Off"
	}
	return fmt.Sprintf("%d min", minutes)
}
