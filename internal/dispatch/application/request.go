package application

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	dispatch "fincas-control/internal/dispatch/domain"
)

// Request is one operator action: a verb applied to a selection of sites.
// Seconds only applies to sleep and Parameters only to set; other verbs ignore them.
type Request struct {
	Verb       string                `json:"verb" validate:"required"`
	Sites      []string              `json:"sites" validate:"dive,required"`
	Seconds    int                   `json:"seconds,omitempty"`
	Parameters []dispatch.Assignment `json:"parameters,omitempty"`
	Topic      string                `json:"topic,omitempty" validate:"omitempty,oneof=data_loss manager reboots"`
}

// Plan is a validated request ready to send.
type Plan struct {
	Verb     dispatch.Verb
	Topic    dispatch.Topic
	Commands []dispatch.Command
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ErrInvalidRequest wraps struct-level validation failures.
var ErrInvalidRequest = errors.New("dispatch: invalid request")

func validateStruct(req Request) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.Namespace(), "Request.")
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		fields = append(fields, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, "; "))
}

// BuildPlan validates req against the catalog and renders one command per site.
// Nothing is sent; the caller decides what to do with warnings.
func BuildPlan(catalog *dispatch.Catalog, req Request) (Plan, error) {
	if catalog == nil {
		return Plan{}, errors.New("dispatch: nil catalog")
	}
	if err := validateStruct(req); err != nil {
		return Plan{}, err
	}
	verb, ok := dispatch.ParseVerb(req.Verb)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", dispatch.ErrUnknownVerb, req.Verb)
	}
	topic, err := dispatch.ParseTopic(req.Topic)
	if err != nil {
		return Plan{}, err
	}
	if len(req.Sites) == 0 {
		return Plan{}, dispatch.ErrNoSites
	}

	seen := make(map[dispatch.Site]struct{}, len(req.Sites))
	sites := make([]dispatch.Site, 0, len(req.Sites))
	for _, raw := range req.Sites {
		site := dispatch.Site(strings.TrimSpace(raw))
		if !catalog.HasSite(site) {
			return Plan{}, fmt.Errorf("%w: %q", dispatch.ErrUnknownSite, raw)
		}
		if _, dup := seen[site]; dup {
			return Plan{}, fmt.Errorf("%w: %q", dispatch.ErrDuplicateSite, raw)
		}
		seen[site] = struct{}{}
		sites = append(sites, site)
	}

	extra := ""
	switch verb {
	case dispatch.VerbSleep:
		seconds := req.Seconds
		if seconds == 0 {
			seconds = dispatch.DefaultSleepSeconds
		}
		if seconds < dispatch.MinSleepSeconds || seconds > dispatch.MaxSleepSeconds {
			return Plan{}, fmt.Errorf("%w: %d", dispatch.ErrSleepRange, seconds)
		}
		extra = fmt.Sprintf("%d", seconds)
	case dispatch.VerbSet:
		if len(req.Parameters) == 0 {
			return Plan{}, dispatch.ErrNoParameters
		}
		for _, assignment := range req.Parameters {
			if err := validate.Struct(assignment); err != nil {
				return Plan{}, fmt.Errorf("%w: parameters: %q", ErrInvalidRequest, assignment.Name)
			}
		}
		if err := catalog.CheckAssignments(req.Parameters); err != nil {
			return Plan{}, err
		}
		extra = dispatch.FormatAssignments(req.Parameters)
	}

	plan := Plan{Verb: verb, Topic: topic, Commands: make([]dispatch.Command, 0, len(sites))}
	for _, site := range sites {
		cmd, err := catalog.BuildCommand(verb, site, extra)
		if err != nil {
			return Plan{}, err
		}
		plan.Commands = append(plan.Commands, cmd)
	}
	return plan, nil
}
