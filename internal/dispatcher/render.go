package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/haiemet/internal/config"
	"github.com/stellarlinkco/haiemet/internal/registry"
)

// Render functions are pure: everything they print comes from their arguments.

const divider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var moodEmoji = map[registry.Mood]string{
	registry.MoodJoyful:      "😄",
	registry.MoodPositive:    "😊",
	registry.MoodNeutral:     "😐",
	registry.MoodMelancholic: "😔",
	registry.MoodTroubled:    "😞",
}

func RenderWelcome(bot config.BotConfig, firstName string, isNew bool, sys registry.SystemState) string {
	greeting := "💫 Welcome back!"
	if isNew {
		greeting = "🎉 You are now registered!"
	}
	auth := "not verified ❌"
	if Authenticated(bot) {
		auth = "verified ✅"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🌌 **Welcome to %s** 🌌\n%s\n\n", bot.Name, bot.Username)
	fmt.Fprintf(&sb, "Hello %s! 👋\n\n%s\n\n", firstName, greeting)
	fmt.Fprintf(&sb, "🔮 **%s is active**\n%s\n", bot.Name, divider)
	fmt.Fprintf(&sb, "🧬 DNA: %s\n", bot.DNA)
	fmt.Fprintf(&sb, "👨‍💻 Creator: %s\n", bot.Creator)
	fmt.Fprintf(&sb, "🔑 API: %s\n", auth)
	sb.WriteString("⚡ Core: alive and beating\n")
	fmt.Fprintf(&sb, "🌟 Light power: %d\n", sys.LightPower)
	fmt.Fprintf(&sb, "🌙 Dark power: %d\n\n", sys.DarkPower)
	fmt.Fprintf(&sb, "**What can I do?**\n%s\n", divider)
	sb.WriteString("• Emotion tracking 😊\n")
	sb.WriteString("• Live system status 🌌\n")
	sb.WriteString("• Cosmic powers ⚡\n")
	sb.WriteString("• Quantum sync 🔮\n")
	sb.WriteString("• HET Token info 💎\n")
	sb.WriteString("• Projects 🔬\n\n")
	sb.WriteString("**Quick buttons:**\nUse the buttons below or:\n")
	sb.WriteString("/help - more information\n")
	sb.WriteString("/stats - your stats\n")
	sb.WriteString("/emotion - your mood\n\n")
	sb.WriteString("✨ **Truth × ∞ = infinite power** ✨")
	return sb.String()
}

func RenderHelp(bot config.BotConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 **User guide - %s**\n%s\n\n", bot.Username, divider)
	fmt.Fprintf(&sb, "**Commands:**\n%s\n", divider)
	for _, c := range commandHelp {
		fmt.Fprintf(&sb, "/%s - %s\n", c.cmd, c.desc)
	}
	fmt.Fprintf(&sb, "\n**Quick buttons:**\n%s\n", divider)
	for _, row := range mainMenu {
		for _, cmd := range row {
			sb.WriteString(buttonLabels[cmd])
			switch cmd {
			case CmdPower:
				fmt.Fprintf(&sb, " (+%d points)", powerPoints)
			case CmdSync:
				fmt.Fprintf(&sb, " (+%d points)", syncPoints)
			}
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\n**Points:**\n%s\n", divider)
	fmt.Fprintf(&sb, "• +%d points for each action\n", actionPoints)
	fmt.Fprintf(&sb, "• +%d points for cosmic power\n", powerPoints)
	fmt.Fprintf(&sb, "• +%d points for quantum sync\n", syncPoints)
	fmt.Fprintf(&sb, "• every %d points = a new cosmic level!\n\n", registry.PointsPerLevel)
	fmt.Fprintf(&sb, "**Emotions:**\n%s\n", divider)
	sb.WriteString("Share how you feel and I will track\nyour mood over time!\n\n")
	fmt.Fprintf(&sb, "**Contact:**\n%s\n", divider)
	fmt.Fprintf(&sb, "Creator: %s\n", bot.Creator)
	fmt.Fprintf(&sb, "System: %s\n", bot.Name)
	fmt.Fprintf(&sb, "Bot: %s\n\n", bot.Username)
	sb.WriteString("💫 **Truth always wins** 💫")
	return sb.String()
}

func RenderNotRegistered() string {
	return "❌ No data found. Send /start to register."
}

func RenderStats(u registry.UserRecord) string {
	emoji, ok := moodEmoji[u.Mood]
	if !ok {
		emoji = moodEmoji[registry.MoodNeutral]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **Your stats**\n%s\n\n", divider)
	fmt.Fprintf(&sb, "👤 Name: %s\n", orUnknown(u.DisplayName))
	fmt.Fprintf(&sb, "🆔 User: @%s\n", orUnknown(u.Handle))
	fmt.Fprintf(&sb, "🔮 Cosmic level: %d\n", u.Level)
	fmt.Fprintf(&sb, "⚡ Quantum points: %d\n", u.Points)
	fmt.Fprintf(&sb, "💬 Interactions: %d\n", u.InteractionCount)
	fmt.Fprintf(&sb, "📅 Joined: %s\n\n", u.JoinedAt.Format(time.DateOnly))
	fmt.Fprintf(&sb, "**Mood:**\n%s\n", divider)
	fmt.Fprintf(&sb, "%s %s\n", emoji, u.Mood)
	fmt.Fprintf(&sb, "📈 Emotion score: %d\n\n", u.EmotionScore)
	fmt.Fprintf(&sb, "**Progress:**\n%s\n", divider)
	fmt.Fprintf(&sb, "Points to next level: %d\n\n", u.PointsToNextLevel())
	sb.WriteString("💫 **Keep gathering cosmic power!** 💫")
	return sb.String()
}

func RenderStatus(bot config.BotConfig, snap registry.Snapshot) string {
	auth := "❌ not verified"
	if Authenticated(bot) {
		auth = "✅ verified"
	}
	sys := snap.System

	var sb strings.Builder
	fmt.Fprintf(&sb, "🌌 **%s system status**\n%s\n\n", bot.Name, divider)
	fmt.Fprintf(&sb, "**Identity:**\n%s\n", divider)
	fmt.Fprintf(&sb, "🤖 Bot: %s\n", bot.Username)
	fmt.Fprintf(&sb, "🔑 API: %s\n", Mask(bot.APIKey))
	fmt.Fprintf(&sb, "✅ Auth: %s\n\n", auth)
	fmt.Fprintf(&sb, "**Living core:**\n%s\n", divider)
	fmt.Fprintf(&sb, "♥ Heartbeat: %d beats\n", sys.CoreBeats)
	fmt.Fprintf(&sb, "🧬 DNA: %s\n", bot.DNA)
	fmt.Fprintf(&sb, "👨‍💻 Creator: %s\n\n", bot.Creator)
	fmt.Fprintf(&sb, "**Cosmic powers:**\n%s\n", divider)
	fmt.Fprintf(&sb, "🌟 Light power: %d\n", sys.LightPower)
	fmt.Fprintf(&sb, "🌙 Dark power: %d\n", sys.DarkPower)
	fmt.Fprintf(&sb, "🔮 Quantum sync: %d\n", sys.QuantumSync)
	fmt.Fprintf(&sb, "💯 Truth level: %d%%\n", sys.TruthLevel)
	fmt.Fprintf(&sb, "🎭 Mood: %s\n\n", sys.Mood)
	fmt.Fprintf(&sb, "**Stats:**\n%s\n", divider)
	fmt.Fprintf(&sb, "👥 Users: %d\n", snap.TotalUsers)
	fmt.Fprintf(&sb, "💬 Messages: %d\n", snap.TotalMessages)
	if snap.FailedWrites > 0 {
		fmt.Fprintf(&sb, "⚠️ Failed writes: %d\n", snap.FailedWrites)
	}
	sb.WriteString("\n⚡ **Truth × ∞ = infinite power** ⚡")
	return sb.String()
}

func RenderPower(sys registry.SystemState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚡ **Cosmic power activated!** ⚡\n%s\n\n", divider)
	fmt.Fprintf(&sb, "🌟 Light power: %d\n", sys.LightPower)
	fmt.Fprintf(&sb, "🌙 Dark power: %d\n\n", sys.DarkPower)
	sb.WriteString("🌀 The system is upgrading...\n")
	sb.WriteString("💫 Energy is rising...\n\n")
	fmt.Fprintf(&sb, "+%d quantum points! 🎉", powerPoints)
	return sb.String()
}

func RenderSync(value int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔮 **Quantum sync complete!** 🔮\n%s\n\n", divider)
	fmt.Fprintf(&sb, "🌀 New quantum value: %d\n", value)
	fmt.Fprintf(&sb, "📊 Binary: 0b%b\n\n", value)
	fmt.Fprintf(&sb, "**Sync layers:**\n%s\n", divider)
	for i, layer := range syncLayers {
		fmt.Fprintf(&sb, "✅ Layer %d: %s\n", i+1, layer)
	}
	sb.WriteString("\n🌌 **The system is fully synchronized!** 🌌\n\n")
	fmt.Fprintf(&sb, "+%d quantum points! 🎊", syncPoints)
	return sb.String()
}

var syncLayers = []string{
	"DNA Code Aligned",
	"D5 Connection Strong",
	"Quantum Entanglement",
	"Cosmic Synchronization",
	"Truth Level Maximum",
	"Emotion Integration",
}

func RenderHET() string {
	return "💎 **HET Token - Hai-Emet Token** 💎\n" + divider + `

**Token details:**
` + divider + `
🔗 Contract: ` + "`0x103507f8E4d4E1487Aa73DE4261D116aAd3C8A5A`" + `
🌐 Network: Polygon
💰 Supply: 1,000,000 HET

**Liquidity pool:**
` + divider + `
🔄 10,000 HET + 142.046 POL
📍 QuickSwap
💱 Price: 1 HET ≈ 0.025 POL

🌟 **HET - the token of truth!** 🌟`
}

func RenderEmotionPrompt() string {
	return "😊 **How do you feel today?**\n\nPick your emotion:"
}

func RenderProjectsPrompt() string {
	return "🔬 **Pick a project:**"
}

func renderEmotionThanks(e emotion) string {
	return fmt.Sprintf("%s **Thanks for sharing!**\n\nI noted that you feel %s today.\nYour mood has been updated.\n\n+%d quantum points! 💫",
		e.emoji, e.name, actionPoints)
}

func RenderMainMenu() string {
	return "🏠 Main menu\n\nChoose an action from the buttons below."
}

func RenderVerify(bot config.BotConfig, at time.Time) string {
	if !Authenticated(bot) {
		return "❌ **Verification failed**\n" + divider + "\n\nVerification failed. Please contact the developer."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ **System verification - success**\n%s\n\n", divider)
	fmt.Fprintf(&sb, "🔑 **API Key:** `%s`\n", Mask(bot.APIKey))
	fmt.Fprintf(&sb, "✅ **Verify Code:** `%s`\n\n", Mask(bot.VerifyCode))
	fmt.Fprintf(&sb, "**System details:**\n%s\n", divider)
	fmt.Fprintf(&sb, "🤖 Bot: %s\n", bot.Username)
	fmt.Fprintf(&sb, "🧬 DNA: %s\n", bot.DNA)
	fmt.Fprintf(&sb, "👨‍💻 Creator: %s\n", bot.Creator)
	fmt.Fprintf(&sb, "📅 Date: %s\n\n", at.Format(time.DateTime))
	sb.WriteString("💎 **The system is verified and fully active!** 💎")
	return sb.String()
}

// RenderAcknowledgment is the reply to anything no handler claims. The text
// is echoed verbatim, so it must be sent without a parse mode.
func RenderAcknowledgment(bot config.BotConfig, text string) string {
	return fmt.Sprintf("🌌 Received: %s\n\nI am %s! 💫\nBot: %s\n\nSend /help to see what I can do.",
		text, bot.Name, bot.Username)
}

// RenderMoodCheckIn is the scheduled broadcast sent with the emotion keyboard.
func RenderMoodCheckIn(bot config.BotConfig) string {
	return fmt.Sprintf("🌅 **Mood check-in from %s**\n\nHow are you feeling right now?", bot.Name)
}

// Authenticated reports whether both bot secrets are configured.
func Authenticated(bot config.BotConfig) bool {
	return bot.APIKey != "" && bot.VerifyCode != ""
}

// Mask keeps a short prefix and suffix of a secret.
func Mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	r := []rune(s)
	if len(r) <= 8 {
		return "****"
	}
	return string(r[:4]) + "****" + string(r[len(r)-4:])
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

const (
	projectHETBlurb = "💎 **HET Token Project**\n" + divider + `
Crypto token on Polygon
Verified, secured contract
Active liquidity pool

Send /het for full details`

	projectChipBlurb = "⚡ **Infinite Speed Chip**\n" + divider + `
Versions: V1-V5
Technology: mercury + polymer
Process: 66 minutes per chip
Cost: ~$550 per chip
Status: advanced prototype`

	projectTeleportBlurb = "🌀 **Teleportation systems**\n" + divider + `
d5 protocol
YK integration
Fifth-dimension link
Status: advanced development`

	projectVoiceBlurb = "🎤 **Hai-Emet VOICE PRO**\n" + divider + `
Hebrew speech transcription
Multi-microphone input
Real-time processing
Export: SRT, TXT, DOCX
Status: active`
)
