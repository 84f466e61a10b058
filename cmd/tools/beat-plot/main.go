// Command beat-plot renders the inter-beat intervals and filter period of
// a recorded session to a PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/beat.report/internal/db"
	"github.com/banshee-data/beat.report/internal/security"
)

var (
	dbPath    = flag.String("db", "beat.db", "SQLite database written by beatd")
	sessionID = flag.String("session", "", "Session to plot (default: most recent)")
	out       = flag.String("out", "", "Output PNG (default: session-<id>.png)")
)

var (
	ibiColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	periodColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// sessionSeries returns the IBI series (x = relative time of the later
// beat) and the filter period over the session.
func sessionSeries(events []db.EventRow) (ibis, periods plotter.XYs) {
	for i, e := range events {
		periods = append(periods, plotter.XY{X: e.RelativeTime, Y: e.Period})
		if i > 0 {
			ibis = append(ibis, plotter.XY{X: e.RelativeTime, Y: e.StreamTime - events[i-1].StreamTime})
		}
	}
	return ibis, periods
}

func plotSession(events []db.EventRow, title, path string) error {
	if len(events) == 0 {
		return errors.New("session has no events")
	}
	ibis, periods := sessionSeries(events)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Session time (s)"
	p.Y.Label.Text = "Interval (s)"

	if len(ibis) > 0 {
		ibiLine, err := plotter.NewLine(ibis)
		if err != nil {
			return err
		}
		ibiLine.Color = ibiColor
		ibiLine.Width = vg.Points(1)
		p.Add(ibiLine)
		p.Legend.Add("IBI", ibiLine)
	}

	periodLine, err := plotter.NewLine(periods)
	if err != nil {
		return err
	}
	periodLine.Color = periodColor
	periodLine.Width = vg.Points(1.5)
	p.Add(periodLine)
	p.Legend.Add("period", periodLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.Sessions(1)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no sessions recorded")
		}
		id = sessions[0].ID
	}
	session, err := database.Session(id)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}

	events, err := database.Events(id, 0)
	if err != nil {
		log.Fatalf("failed to load events: %v", err)
	}

	path := *out
	if path == "" {
		path = security.SanitizeFilename("session-"+id) + ".png"
	}
	if err := security.ValidateOutputPath(path); err != nil {
		log.Fatalf("refusing to write plot: %v", err)
	}
	title := fmt.Sprintf("Session %s (%s)", id, session.Source)
	if err := plotSession(events, title, path); err != nil {
		log.Fatalf("failed to plot session: %v", err)
	}
	log.Printf("wrote %s (%d events)", path, len(events))
}
