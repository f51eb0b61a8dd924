// Package image implements the container-image component: pull, push, tag,
// list, and inspect operations executed through podman.
package image

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kettleworks/dirigent/internal/cache"
	"github.com/kettleworks/dirigent/internal/component"
	"github.com/kettleworks/dirigent/internal/runner"
	"github.com/kettleworks/dirigent/internal/schema"
)

// Action is the closed set of image operations. Adding an action means
// extending this enum and every switch over it.
type Action string

const (
	ActionPull    Action = "pull"
	ActionPush    Action = "push"
	ActionTag     Action = "tag"
	ActionList    Action = "list"
	ActionInspect Action = "inspect"
)

// actions in flag declaration order.
var actions = []Action{ActionPull, ActionPush, ActionTag, ActionList, ActionInspect}

// ParseAction maps a job's action discriminator back onto the enum.
func ParseAction(s string) (Action, error) {
	for _, a := range actions {
		if s == string(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown image action %q", s)
}

// Component processes container images.
type Component struct {
	*component.Base
}

// New builds the image component and its schema.
func New() *Component {
	c := &Component{Base: component.NewBase("image", "Process container images")}

	s := c.Schema()
	s.MustAdd(schema.Option{Name: "pull", Type: schema.Bool, Group: "action", Help: "Pull images from a registry."})
	s.MustAdd(schema.Option{Name: "push", Type: schema.Bool, Group: "action", Help: "Push images to a registry."})
	s.MustAdd(schema.Option{Name: "tag", Type: schema.Bool, Group: "action", Help: "Tag images with a new tag."})
	s.MustAdd(schema.Option{Name: "list", Type: schema.Bool, Group: "action", Help: "List all images on a host."})
	s.MustAdd(schema.Option{Name: "inspect", Type: schema.Bool, Group: "action", Help: "Inspect specific images on a host."})
	s.SetPositional("images", "specify container images.")

	return c
}

// Server parses and validates an image job. Violated cross-field invariants
// are rejected here, never deferred to the worker.
func (c *Component) Server(execFragments []string, job *component.Job, argVars map[string]any) error {
	args, err := c.ParseExec(execFragments, job, argVars)
	if err != nil {
		return err
	}

	action, err := chosenAction(args)
	if err != nil {
		c.Logger().Error(err.Error())
		return err
	}
	images := args.List("images")

	switch action {
	case ActionTag:
		if len(images) != 2 {
			msg := "Must specify exactly 2 images to tag."
			c.Logger().Error(msg)
			return fmt.Errorf("%s", msg)
		}
	case ActionPull, ActionPush, ActionInspect:
		if len(images) == 0 {
			msg := fmt.Sprintf("Must specify at least one image to %s.", action)
			c.Logger().Error(msg)
			return fmt.Errorf("%s", msg)
		}
	case ActionList:
		if len(images) > 0 {
			msg := "Cannot specify images with --list."
			c.Logger().Error(msg)
			return fmt.Errorf("%s", msg)
		}
	}

	job.Action = string(action)
	job.Data["images"] = images
	return nil
}

func chosenAction(args *schema.Args) (Action, error) {
	for _, a := range actions {
		if args.Bool(string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("an image action is required: one of --pull, --push, --tag, --list, --inspect")
}

// Client locates podman and runs the requested image operation. A missing
// binary or failed command is reported in the Result, never raised.
func (c *Component) Client(ctx context.Context, store *cache.Store, job *component.Job) component.Result {
	c.Logger().Debug("client execution", "job_id", job.ID, "action", job.Action)

	podman, err := exec.LookPath("podman")
	if err != nil {
		c.Logger().Error("unable to find podman binary", "error", err)
		return component.Failure("Unable to find podman binary.")
	}

	action, err := ParseAction(job.Action)
	if err != nil {
		c.Logger().Error("invalid job action", "error", err)
		return component.Failure(err.Error())
	}

	parts := []string{podman, "image", string(action)}
	if images := job.Strings("images"); len(images) > 0 {
		parts = append(parts, images...)
	}
	command := strings.Join(parts, " ")
	c.Logger().Debug("command", "command", command)

	res, err := c.Run(ctx, runner.Request{Command: command, Shell: true})
	if err != nil {
		c.Logger().Error("image command could not start", "error", err)
		return component.Result{Error: []byte(err.Error()), Command: command}
	}

	return component.Result{
		Output:  res.Stdout,
		Error:   res.Stderr,
		OK:      res.OK,
		Command: command,
	}
}
