package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rainbow979/sticky-mitten-avatar/internal/config"
	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
	"github.com/rainbow979/sticky-mitten-avatar/internal/logging"
	"github.com/rainbow979/sticky-mitten-avatar/internal/ui"
	"github.com/rainbow979/sticky-mitten-avatar/sma"
)

var (
	promptText = color.New(color.FgCyan, color.Bold).SprintFunc()
	errText    = color.New(color.FgRed).SprintFunc()
	dimText    = color.New(color.Faint).SprintFunc()
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "drive the avatar interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd.Context())
		},
	}
}

func runRepl(ctx context.Context) error {
	settings := config.Load()
	sess, err := openSession(ctx, settings, "repl")
	if err != nil {
		return err
	}
	status := "success"
	defer func() { sess.close(status) }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptText("sma> "),
		HistoryFile:     filepath.Join(settings.DataDir, "repl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		status = "aborted"
		return fmt.Errorf("repl: %w", err)
	}
	defer rl.Close()

	fmt.Println("sma — sticky mitten avatar REPL (type 'help', 'exit' to quit)")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			status = "aborted"
			return fmt.Errorf("repl: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := dispatchLine(ctx, sess, line); err != nil {
			fmt.Println(errText("error: " + err.Error()))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func dispatchLine(ctx context.Context, sess *session, line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	ctrl := sess.ctrl

	switch cmd {
	case "help":
		printHelp()
		return nil

	case "objects":
		rows := make([][]string, 0)
		for _, o := range ctrl.Objects() {
			held := ""
			if arm, ok := ctrl.IsHolding(o.ID); ok {
				held = string(arm)
			}
			rows = append(rows, []string{
				strconv.FormatInt(o.ID, 10), o.Name, fmt.Sprintf("%.2f", o.Mass), held,
			})
		}
		ui.RenderTable(os.Stdout, []string{"ID", "NAME", "MASS", "HELD"}, rows)
		return nil

	case "held":
		ids := ctrl.HeldObjects()
		if len(ids) == 0 {
			fmt.Println("nothing held")
			return nil
		}
		for _, id := range ids {
			arm, _ := ctrl.IsHolding(id)
			name := fmt.Sprintf("object %d", id)
			if o, ok := ctrl.Object(id); ok {
				name = fmt.Sprintf("%s (%d)", o.Name, id)
			}
			fmt.Printf("%s mitten: %s\n", arm, name)
		}
		return nil

	case "pose":
		p := ctrl.Pose()
		fmt.Printf("position (%.2f, %.2f, %.2f) · heading %.1f°\n",
			p.Position.X, p.Position.Y, p.Position.Z, ctrl.Heading())
		return nil

	case "runs":
		runs, err := sess.store.Runs()
		if err != nil {
			return err
		}
		printRuns(os.Stdout, runs)
		return nil

	case "reach":
		if len(args) < 4 {
			return errors.New("usage: reach <left|right> <x> <y> <z> [detach]")
		}
		arm, err := parseArm(args[0])
		if err != nil {
			return err
		}
		point, err := parseVec3(args[1:4])
		if err != nil {
			return err
		}
		_, err = ctrl.ReachForTarget(ctx, arm, point, sma.ReachOptions{Detach: hasFlag(args[4:], "detach")})
		return err

	case "grasp":
		if len(args) < 1 {
			return errors.New("usage: grasp <object> [detach]")
		}
		id, err := resolveObject(ctrl, args[0])
		if err != nil {
			return err
		}
		arm, st, err := ctrl.GraspObject(ctx, id, sma.GraspOptions{Detach: hasFlag(args[1:], "detach")})
		if err != nil {
			return err
		}
		if st == sma.StatusSuccess {
			fmt.Printf("held in %s mitten\n", arm)
		}
		return nil

	case "drop":
		_, err := ctrl.Drop(ctx, sma.DropOptions{Detach: hasFlag(args, "detach")})
		return err

	case "reset":
		_, err := ctrl.ResetArms(ctx, sma.ResetOptions{Detach: hasFlag(args, "detach")})
		return err

	case "turnto":
		target, err := parseTarget(ctrl, args)
		if err != nil {
			return err
		}
		_, err = ctrl.TurnTo(ctx, target, sma.TurnOptions{})
		return err

	case "turnby":
		if len(args) != 1 {
			return errors.New("usage: turnby <degrees>")
		}
		angle, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("bad angle %q", args[0])
		}
		_, err = ctrl.TurnBy(ctx, angle, sma.TurnOptions{})
		return err

	case "move":
		if len(args) != 1 {
			return errors.New("usage: move <distance>")
		}
		dist, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("bad distance %q", args[0])
		}
		_, err = ctrl.MoveForwardBy(ctx, dist, sma.MoveOptions{})
		return err

	case "goto":
		target, err := parseTarget(ctrl, args)
		if err != nil {
			return err
		}
		_, err = ctrl.GoTo(ctx, target, sma.GoToOptions{})
		return err

	case "shake":
		opts := sma.ShakeOptions{}
		if len(args) > 0 {
			opts.Joint = args[0]
		}
		if len(args) > 1 {
			opts.Axis = args[1]
		}
		return ctrl.Shake(ctx, opts)

	case "camera":
		if len(args) != 2 {
			return errors.New("usage: camera <pitch|yaw|roll> <degrees>")
		}
		angle, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("bad angle %q", args[1])
		}
		return ctrl.RotateCameraBy(ctx, args[0], angle)

	case "camreset":
		return ctrl.ResetCameraRotation(ctx)

	case "frames":
		if len(args) != 1 {
			return errors.New("usage: frames <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad frame count %q", args[0])
		}
		return ctrl.StepFrames(ctx, n)

	case "loglevel":
		if len(args) != 1 {
			return errors.New("usage: loglevel <debug|info|warn|error>")
		}
		logging.SetLevel(args[0])
		fmt.Printf("log level set to %s\n", strings.ToLower(args[0]))
		return nil

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func printHelp() {
	groups := []struct {
		usage, what string
	}{
		{"objects", "scene objects and who holds them"},
		{"held", "objects attached to the mittens"},
		{"pose", "avatar position and heading"},
		{"runs", "recorded runs in the store"},
		{"reach <left|right> <x> <y> <z> [detach]", "bend a mitten to a local point"},
		{"grasp <object> [detach]", "pick up a scene object"},
		{"drop [detach]", "release everything and reset the arms"},
		{"reset [detach]", "bend both arms back to neutral"},
		{"turnto <object | x z>", "rotate in place to face a target"},
		{"turnby <degrees>", "rotate in place by an angle"},
		{"move <distance>", "drive forward"},
		{"goto <object | x z>", "turn, then drive to a target"},
		{"shake [joint] [axis]", "oscillate a joint"},
		{"camera <axis> <degrees>", "rotate the sensor container"},
		{"camreset", "reset the sensor container rotation"},
		{"frames <n>", "advance n steps with no commands"},
		{"loglevel <level>", "change the log verbosity"},
		{"exit", "close the session"},
	}
	for _, g := range groups {
		fmt.Printf("  %-42s %s\n", g.usage, dimText(g.what))
	}
}

func parseArm(s string) (sma.Arm, error) {
	switch s {
	case "left":
		return sma.ArmLeft, nil
	case "right":
		return sma.ArmRight, nil
	}
	return "", fmt.Errorf("bad arm %q (left or right)", s)
}

func parseVec3(args []string) (geom.Vec3, error) {
	var v geom.Vec3
	for i, p := range []*float64{&v.X, &v.Y, &v.Z} {
		f, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return geom.Vec3{}, fmt.Errorf("bad coordinate %q", args[i])
		}
		*p = f
	}
	return v, nil
}

// resolveObject accepts a numeric object ID or a model name.
func resolveObject(ctrl *sma.Controller, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	if id, ok := ctrl.ObjectIDByName(arg); ok {
		return id, nil
	}
	return 0, fmt.Errorf("no object named %q in the scene", arg)
}

// parseTarget accepts an object name/ID, "x z" ground coordinates, or a full
// "x y z" point.
func parseTarget(ctrl *sma.Controller, args []string) (sma.Target, error) {
	switch len(args) {
	case 1:
		id, err := resolveObject(ctrl, args[0])
		if err != nil {
			return nil, err
		}
		return sma.ObjectTarget(id), nil
	case 2:
		x, errX := strconv.ParseFloat(args[0], 64)
		z, errZ := strconv.ParseFloat(args[1], 64)
		if errX != nil || errZ != nil {
			return nil, errors.New("bad coordinates")
		}
		return sma.PointTarget(geom.Vec3{X: x, Z: z}), nil
	case 3:
		v, err := parseVec3(args)
		if err != nil {
			return nil, err
		}
		return sma.PointTarget(v), nil
	}
	return nil, errors.New("target is an object, \"x z\", or \"x y z\"")
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
