package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"luna/internal/ipc"
	"luna/internal/nlu"
)

// Controller answers control-channel requests.
type Controller struct {
	Assistant *Assistant
	Listener  *Listener // nil without a microphone
	Grammars  *nlu.GrammarStore
	// Status contributes daemon-level fields to the status reply.
	Status func() map[string]any
}

func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Reply {
	arg := strings.TrimSpace(req.Arg)
	switch req.Cmd {
	case ipc.CmdTrigger:
		if c.Listener == nil {
			return ipc.Fail(errors.New("no audio input"))
		}
		id, err := c.Listener.Trigger()
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Reply{OK: true, Text: "listening", Data: map[string]any{"correlation_id": id.String()}}

	case ipc.CmdSay:
		if arg == "" {
			return ipc.Fail(errors.New("say needs text"))
		}
		resp, err := c.Assistant.HandleText(context.WithoutCancel(ctx), arg)
		reply := responseReply(resp)
		if err != nil {
			reply.OK = false
			reply.Error = err.Error()
		}
		return reply

	case ipc.CmdPreview:
		if arg == "" {
			return ipc.Fail(errors.New("preview needs text"))
		}
		resp, err := c.Assistant.Preview(ctx, arg)
		if err != nil {
			return ipc.Fail(err)
		}
		reply := responseReply(resp)
		reply.Text = strings.Join(resp.Result.Messages, "\n")
		return reply

	case ipc.CmdParse:
		in := c.Assistant.Interpreter().Interpret(ctx, arg)
		return ipc.Reply{OK: true, Text: in.Text, Data: interpretationData(in)}

	case ipc.CmdCancel:
		c.Assistant.Cancel()
		return ipc.Ok("cancelled")

	case ipc.CmdReload:
		if c.Grammars == nil {
			return ipc.Fail(errors.New("no grammar store"))
		}
		if err := c.Grammars.Reload(); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok("grammar reloaded")

	case ipc.CmdSensitivity:
		if c.Listener == nil {
			return ipc.Fail(errors.New("no wake detector"))
		}
		w := c.Listener.Wake()
		if arg == "" {
			return ipc.Ok(strconv.FormatFloat(float64(w.Sensitivity()), 'f', 2, 32))
		}
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil || v < 0 || v > 1 {
			return ipc.Fail(errors.New("sensitivity must be between 0 and 1"))
		}
		w.SetSensitivity(float32(v))
		return ipc.Ok(fmt.Sprintf("sensitivity %.2f", v))

	case ipc.CmdAssert, ipc.CmdRetract:
		if arg == "" {
			return ipc.Fail(fmt.Errorf("%s needs a condition", req.Cmd))
		}
		st := c.Assistant.Executor().State()
		if req.Cmd == ipc.CmdAssert {
			st.Assert(arg)
		} else {
			st.Retract(arg)
		}
		return ipc.Ok(req.Cmd + "ed: " + arg)

	case ipc.CmdStatus:
		return ipc.Reply{OK: true, Text: "running", Data: c.status()}

	default:
		return ipc.Fail(fmt.Errorf("unknown command %q", req.Cmd))
	}
}

func (c *Controller) status() map[string]any {
	values, conds := c.Assistant.Executor().State().Snapshot()
	parsed, plans := c.Assistant.Interpreter().CacheLen()
	out := map[string]any{
		"state":       values,
		"conditions":  conds,
		"cache_parse": parsed,
		"cache_plans": plans,
	}
	if c.Listener != nil {
		out["wake_keywords"] = c.Listener.Wake().Keywords()
		out["wake_sensitivity"] = c.Listener.Wake().Sensitivity()
	}
	if c.Status != nil {
		for k, v := range c.Status() {
			out[k] = v
		}
	}
	return out
}

func responseReply(resp Response) ipc.Reply {
	data := interpretationData(resp.Interpretation)
	data["correlation_id"] = resp.CorrelationID.String()
	if resp.Clarification != nil {
		data["clarification"] = resp.Clarification
	}
	if r := resp.Result; r != nil {
		data["plan_id"] = r.PlanID.String()
		data["success"] = r.Success
		data["steps_completed"] = r.StepsCompleted
		data["steps_failed"] = r.StepsFailed
	}
	return ipc.Reply{OK: true, Text: resp.Reply, Data: data}
}

func interpretationData(in Interpretation) map[string]any {
	steps := make([]string, len(in.Plan.Steps))
	for i, s := range in.Plan.Steps {
		steps[i] = s.Describe()
	}
	intents := make([]string, len(in.Multi.Segments))
	for i, s := range in.Multi.Segments {
		intents[i] = s.Result.Command.Intent.String()
	}
	return map[string]any{
		"text":         in.Text,
		"resolved":     in.Resolved,
		"coordination": in.Multi.Coordination.String(),
		"intents":      intents,
		"steps":        steps,
		"valid":        in.Plan.Valid,
		"notes":        in.Plan.ValidationErrors,
	}
}
