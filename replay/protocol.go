// replay/protocol.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmp/gaggle/util"
)

// The viewer speaks a line-oriented property protocol over a persistent
// connection: each request is "set <property-path> <value>\n" (an empty
// value clears the property) and each gets exactly one response line
// back, "ok" or "err <detail>". The driver owns a pool of model slots
// on the viewer side, addressed as /models/model[i]; assigning a slot's
// path property makes the model appear, clearing it frees the slot.

// Model is a viewer-side aircraft model.
type Model struct {
	Name string
	Path string
}

// Models are the models the viewer ships with.
var Models = map[string]Model{
	"dg101":    {Name: "dg101", Path: "Aircraft/DG-101G/Models/DG-101G.xml"},
	"asg29":    {Name: "asg29", Path: "Aircraft/ASG29/Models/ASG29.xml"},
	"spitfire": {Name: "spitfire", Path: "Aircraft/Spitfire/Models/spitfire_model.xml"},
	"lego":     {Name: "lego", Path: "Aircraft/lego/Models/lego.xml"},
}

const DefaultModel = "asg29"

// LookupModel resolves a model name from the command line; empty picks
// the default.
func LookupModel(name string) (Model, error) {
	if name == "" {
		name = DefaultModel
	}
	if m, ok := Models[name]; ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("%s: unknown model (have %s)",
		name, strings.Join(util.SortedMapKeys(Models), ", "))
}

func slotProperty(slot int, prop string) string {
	return fmt.Sprintf("/models/model[%d]/%s", slot, prop)
}

func parseResponse(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "ok":
		return nil
	case strings.HasPrefix(line, "err"):
		return errors.New(strings.TrimSpace(strings.TrimPrefix(line, "err")))
	default:
		return fmt.Errorf("%q: unintelligible viewer response", line)
	}
}
