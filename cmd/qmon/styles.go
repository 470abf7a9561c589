package main

import "github.com/gdamore/tcell/v2"

// theme defines the color palette for the dashboard, trimmed from the
// full cluster dashboard's palette down to the colors this single view
// actually uses.
type theme struct {
	Background tcell.Color
	Text       tcell.Color
	Muted      tcell.Color
	Success    tcell.Color
	Warning    tcell.Color
	Error      tcell.Color
	Highlight  tcell.Color
}

var defaultTheme = theme{
	Background: tcell.NewRGBColor(15, 23, 42),
	Text:       tcell.NewRGBColor(226, 232, 240),
	Muted:      tcell.NewRGBColor(148, 163, 184),
	Success:    tcell.NewRGBColor(34, 197, 94),
	Warning:    tcell.NewRGBColor(234, 179, 8),
	Error:      tcell.NewRGBColor(239, 68, 68),
	Highlight:  tcell.NewRGBColor(56, 189, 248),
}

type styles struct {
	Normal    tcell.Style
	Bold      tcell.Style
	Muted     tcell.Style
	Success   tcell.Style
	Warning   tcell.Style
	Error     tcell.Style
	Header    tcell.Style
	Highlight tcell.Style
}

func getStyles(th theme) styles {
	base := tcell.StyleDefault.Background(th.Background).Foreground(th.Text)

	return styles{
		Normal:    base,
		Bold:      base.Bold(true),
		Muted:     base.Foreground(th.Muted),
		Success:   base.Foreground(th.Success),
		Warning:   base.Foreground(th.Warning),
		Error:     base.Foreground(th.Error),
		Header:    base.Foreground(th.Highlight).Bold(true),
		Highlight: base.Foreground(th.Highlight),
	}
}

var currentStyles = getStyles(defaultTheme)

// styleForState picks a color for a peer session state string.
func styleForState(state string) tcell.Style {
	switch state {
	case "Open":
		return currentStyles.Success
	case "Connecting", "ReconnectPending":
		return currentStyles.Warning
	case "Closing", "Failed":
		return currentStyles.Error
	default:
		return currentStyles.Muted
	}
}
