// Package ui holds the lipgloss palette for the caption viewer.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette. Adaptive colors keep captions readable on light terminals.
var (
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#5FD7FF"}
	ColorCaption = lipgloss.AdaptiveColor{Light: "#1C1C1C", Dark: "#EEEEEE"}
	ColorPending = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD75F"}
	ColorTrans   = lipgloss.AdaptiveColor{Light: "#005FD7", Dark: "#87AFFF"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	ColorRule    = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#3A3A3A"}
	ColorAlert   = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	ColorOK      = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#87D787"}
	ColorPast    = lipgloss.AdaptiveColor{Light: "#8700AF", Dark: "#D787FF"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// Header and status bar.
var (
	TitleStyle        = fg(ColorAccent).Bold(true)
	RecordingDotStyle = fg(ColorAlert).Bold(true)
	IdleDotStyle      = fg(ColorMuted)
	SpinnerStyle      = fg(ColorPast)
	DividerStyle      = fg(ColorRule)
	DimStyle          = fg(ColorMuted)
)

// Transcript.
var (
	TimestampStyle   = fg(ColorMuted)
	PartialTextStyle = fg(ColorPending)

	// TranslationStyle renders the translation line under a finalized caption.
	TranslationStyle = fg(ColorTrans)

	// RealtimeTranslationStyle renders the provisional translation of the
	// caption still being spoken.
	RealtimeTranslationStyle = fg(ColorTrans).Italic(true).Faint(true)

	LiveBadgeStyle    = fg(ColorOK).Bold(true)
	ScrollBadgeStyle  = fg(ColorPending).Bold(true)
	HistoryBadgeStyle = fg(ColorPast).Bold(true)
)

// Panels, errors and footer.
var (
	PanelTitleStyle       = fg(ColorCaption).Bold(true)
	PanelTitleActiveStyle = fg(ColorAccent).Bold(true)
	SelectedStyle         = fg(ColorAccent).Bold(true)

	ErrorStyle     = fg(ColorAlert).Bold(true)
	ErrorTextStyle = fg(ColorAlert)

	FooterKeyStyle  = fg(ColorPending).Bold(true)
	FooterDescStyle = fg(ColorMuted)
)
