// Command-line sync client used to exercise a relay: it joins a session,
// makes random label edits on a synthetic volume, and reports counters.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxelsync/session"
	"github.com/janelia-flyem/voxelsync/transport/ws"
	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

var (
	showHelp = flag.Bool("help", false, "")

	runVerbose = flag.Bool("verbose", false, "")

	serverURL = flag.String("server", "http://localhost:8000", "")

	sessionID = flag.String("session", "demo", "")

	userID = flag.String("user", "", "")

	token = flag.String("token", "", "")

	dimsSpec = flag.String("dims", "64,64,64", "")

	editInterval = flag.Duration("edit", 500*time.Millisecond, "")
)

const helpMessage = `
voxsync joins a collaborative voxel sync session and makes random edits

Usage: voxsync [options]

      -server     =string   Base URL of the relay (default http://localhost:8000).
      -session    =string   Session identifier to join (default "demo").
      -user       =string   Participant identifier.  Default is a random UUID.
      -token      =string   Auth token passed to the relay.
      -dims       =string   Volume dimensions as z,y,x (default 64,64,64).
      -edit       =duration Interval between random edits (default 500ms).
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message
`

var usage = func() {
	fmt.Print(helpMessage)
}

func parseDims(arg string) (voxelsync.Point3d, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 3 {
		return voxelsync.Point3d{}, fmt.Errorf("dims must be 3 comma-separated numbers, got %q", arg)
	}
	var dims voxelsync.Point3d
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil || n <= 0 {
			return voxelsync.Point3d{}, fmt.Errorf("bad dimension %q in %q", part, arg)
		}
		dims[i] = int32(n)
	}
	return dims, nil
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		voxelsync.SetLogMode(voxelsync.DebugMode)
	} else {
		voxelsync.SetLogMode(voxelsync.InfoMode)
	}

	dims, err := parseDims(*dimsSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	user := *userID
	if user == "" {
		user = "voxsync-" + uuid.NewV4().String()[:8]
	}

	vol := volume.New(dims, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	tr := ws.New()
	s, err := session.New(vol, tr, user, voxelsync.DefaultEngineConfig(), session.Callbacks{
		OnStateChange: func(st session.State) {
			voxelsync.Infof("connection state: %s\n", st)
		},
		OnError: func(err error) {
			voxelsync.Errorf("session error: %v\n", err)
		},
		OnSessionEnded: func() {
			voxelsync.Infof("session ended by host\n")
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	endpoint := ws.SessionURL(*serverURL, *sessionID, *token)
	if err := s.Connect(context.Background(), endpoint); err != nil {
		fmt.Fprintf(os.Stderr, "unable to join session %s: %v\n", *sessionID, err)
		os.Exit(1)
	}
	fmt.Printf("joined session %s as %s\n", *sessionID, user)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	edits := time.NewTicker(*editInterval)
	defer edits.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-edits.C:
			if s.State() != session.Connected {
				continue
			}
			z := rand.Int31n(dims[0])
			y := rand.Int31n(dims[1])
			x := rand.Int31n(dims[2])
			vol.SetLabelAt(z, y, x, uint64(rand.Intn(16)+1))
			s.NotifyLocalMutation()

		case <-report.C:
			stats := s.Stats()
			fmt.Printf("%s: sent %d, received %d, %d users connected\n",
				stats.State, stats.Sent, stats.Received, stats.ConnectedUsers)

		case sig := <-sigCh:
			fmt.Printf("got signal %s, disconnecting\n", sig)
			s.Disconnect()
			voxelsync.Shutdown()
			return
		}
	}
}
