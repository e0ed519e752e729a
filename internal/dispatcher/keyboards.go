package dispatcher

import (
	"strings"

	"github.com/stellarlinkco/haiemet/internal/bus"
)

// buttonLabels is the reply-keyboard text that triggers each command.
var buttonLabels = map[Command]string{
	CmdStatus:   "🌌 System Status",
	CmdPower:    "⚡ Cosmic Power",
	CmdSync:     "🔮 Quantum Sync",
	CmdStats:    "📊 My Stats",
	CmdEmotion:  "😊 Mood",
	CmdHET:      "💎 HET Token",
	CmdProjects: "🔬 Projects",
	CmdHelp:     "ℹ️ Help",
}

// mainMenu is the layout of the reply keyboard shown after /start.
var mainMenu = [][]Command{
	{CmdStatus, CmdPower},
	{CmdSync, CmdStats},
	{CmdEmotion, CmdHET},
	{CmdProjects, CmdHelp},
}

const (
	callbackBackMain = "back_main"
	backLabel        = "🔙 Back"
)

type emotion struct {
	callback string
	emoji    string
	name     string
	delta    int64
}

var emotions = []emotion{
	{"emotion_happy", "😊", "happy", 20},
	{"emotion_sad", "😢", "sad", -20},
	{"emotion_angry", "😠", "angry", -15},
	{"emotion_calm", "😌", "calm", 10},
	{"emotion_thoughtful", "🤔", "thoughtful", 5},
	{"emotion_tired", "😴", "tired", -10},
}

type project struct {
	callback string
	label    string
	blurb    string
}

var projects = []project{
	{"project_het", "💎 HET Token", projectHETBlurb},
	{"project_chip", "⚡ Infinite Speed Chip", projectChipBlurb},
	{"project_teleport", "🌀 Teleportation", projectTeleportBlurb},
	{"project_voice", "🎤 Hai-Emet VOICE PRO", projectVoiceBlurb},
}

// MainKeyboard is the persistent reply keyboard.
func MainKeyboard() *bus.Keyboard {
	rows := make([][]bus.Button, 0, len(mainMenu))
	for _, row := range mainMenu {
		buttons := make([]bus.Button, 0, len(row))
		for _, cmd := range row {
			buttons = append(buttons, bus.Button{Label: buttonLabels[cmd]})
		}
		rows = append(rows, buttons)
	}
	return &bus.Keyboard{Kind: bus.KeyboardReply, Rows: rows}
}

// EmotionKeyboard offers one inline button per emotion, two per row, plus Back.
func EmotionKeyboard() *bus.Keyboard {
	rows := make([][]bus.Button, 0, len(emotions)/2+1)
	for i := 0; i < len(emotions); i += 2 {
		row := []bus.Button{emotionButton(emotions[i])}
		if i+1 < len(emotions) {
			row = append(row, emotionButton(emotions[i+1]))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []bus.Button{{Label: backLabel, Data: callbackBackMain}})
	return &bus.Keyboard{Kind: bus.KeyboardInline, Rows: rows}
}

func emotionButton(e emotion) bus.Button {
	return bus.Button{Label: e.emoji + " " + capitalize(e.name), Data: e.callback}
}

// ProjectsKeyboard offers one inline button per project, plus Back.
func ProjectsKeyboard() *bus.Keyboard {
	rows := make([][]bus.Button, 0, len(projects)+1)
	for _, p := range projects {
		rows = append(rows, []bus.Button{{Label: p.label, Data: p.callback}})
	}
	rows = append(rows, []bus.Button{{Label: backLabel, Data: callbackBackMain}})
	return &bus.Keyboard{Kind: bus.KeyboardInline, Rows: rows}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
