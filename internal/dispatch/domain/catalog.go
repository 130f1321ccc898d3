package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSites are the fincas known to the automation backend.
var DefaultSites = []Site{
	"fernando_campos", "la_jaquita", "hoya_grande", "el_jardin", "torretas",
	"las_canas", "la_luz", "la_quinta_3", "majuelos", "carlos_ascanio",
}

// DefaultParameters are the names accepted by the set command.
var DefaultParameters = []string{
	"water_counter", "WD_timeout", "read_interval", "data_count",
	"max_messages", "min_signal", "min_battery",
}

// Catalog holds the sites and settable parameters fixed at startup.
type Catalog struct {
	sites      []Site
	parameters []string
	siteSet    map[Site]struct{}
	paramSet   map[string]struct{}
}

// NewCatalog validates and constructs a catalog.
func NewCatalog(sites []Site, parameters []string) (*Catalog, error) {
	if len(sites) == 0 {
		return nil, errors.New("catalog: no sites")
	}
	if len(parameters) == 0 {
		return nil, errors.New("catalog: no parameters")
	}
	c := &Catalog{
		sites:      make([]Site, 0, len(sites)),
		parameters: make([]string, 0, len(parameters)),
		siteSet:    make(map[Site]struct{}, len(sites)),
		paramSet:   make(map[string]struct{}, len(parameters)),
	}
	for _, site := range sites {
		name := strings.TrimSpace(string(site))
		if name == "" || strings.ContainsAny(name, " \t\n") {
			return nil, fmt.Errorf("catalog: invalid site %q", site)
		}
		if _, ok := c.siteSet[Site(name)]; ok {
			return nil, fmt.Errorf("catalog: duplicate site %q", name)
		}
		c.siteSet[Site(name)] = struct{}{}
		c.sites = append(c.sites, Site(name))
	}
	for _, param := range parameters {
		name := strings.TrimSpace(param)
		if name == "" || strings.ContainsAny(name, " \t\n=,") {
			return nil, fmt.Errorf("catalog: invalid parameter %q", param)
		}
		if _, ok := c.paramSet[name]; ok {
			return nil, fmt.Errorf("catalog: duplicate parameter %q", name)
		}
		c.paramSet[name] = struct{}{}
		c.parameters = append(c.parameters, name)
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSites, DefaultParameters)
	if err != nil {
		panic(err)
	}
	return c
}

// Sites returns the sites in configured order.
func (c *Catalog) Sites() []Site {
	return append([]Site(nil), c.sites...)
}

// Parameters returns the settable parameter names in configured order.
func (c *Catalog) Parameters() []string {
	return append([]string(nil), c.parameters...)
}

// HasSite reports whether site belongs to the catalog.
func (c *Catalog) HasSite(site Site) bool {
	_, ok := c.siteSet[site]
	return ok
}

// HasParameter reports whether name is settable.
func (c *Catalog) HasParameter(name string) bool {
	_, ok := c.paramSet[name]
	return ok
}

// BuildCommand checks set membership and returns the command value with the
// verb in canonical form. extra is used verbatim; callers format sleep
// durations and set assignments.
func (c *Catalog) BuildCommand(verb Verb, site Site, extra string) (Command, error) {
	canonical, ok := ParseVerb(string(verb))
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	if !c.HasSite(site) {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownSite, site)
	}
	return Command{Verb: canonical, Site: site, Extra: strings.TrimSpace(extra)}, nil
}
