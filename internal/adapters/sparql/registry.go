package sparql

import (
	"context"
	"fmt"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
)

// prefixes is prepended to every query/update, per the registry's fixed
// vocabulary.
const prefixes = `
PREFIX docker: <https://w3.org/ns/bde/docker#>
PREFIX logger: <http://mu.semte.ch/vocabularies/ext/docker-logger/>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
`

// networkMonitorLabel excludes a container that is itself a monitor
// companion from the eligibility query.
const networkMonitorLabel = "mu.semte.ch.networkMonitor"

// Registry implements ports.Registry against a SPARQL endpoint, scoped to a
// single application graph and operator-supplied eligibility filter
// fragment. CAPTURE_CONTAINER_FILTER is operator-trusted configuration, not
// user input: it is spliced into the query text unescaped, per the
// documented contract in §9 of the design notes.
type Registry struct {
	Client *Client
	Graph  string
	Filter string
}

// New builds a SPARQL-backed Registry.
func New(client *Client, graph, filter string) *Registry {
	return &Registry{Client: client, Graph: graph, Filter: filter}
}

// Ready reports whether the registry can currently answer queries.
func (r *Registry) Ready(ctx context.Context) (bool, error) {
	ok, err := r.Client.Ask(ctx, prefixes+"ASK { ?s ?p ?o }")
	if err != nil {
		return false, fmt.Errorf("sparql: readiness check: %w", err)
	}
	return ok, nil
}

// LoggedContainers runs the eligibility query: running containers matching
// the operator filter that do not themselves carry the network-monitor
// label.
func (r *Registry) LoggedContainers(ctx context.Context) ([]domain.Container, error) {
	query := fmt.Sprintf(`%s
SELECT ?uri ?id ?name ?image WHERE {
  GRAPH <%s> {
    ?uri a docker:Container ;
         docker:id ?id ;
         docker:name ?name ;
         docker:image ?image ;
         docker:state/docker:status "running" .
    %s
    FILTER NOT EXISTS { ?uri docker:label/docker:key "%s" }
  }
}`, prefixes, r.Graph, r.Filter, networkMonitorLabel)

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: logged containers: %w", err)
	}

	rows := rs.Rows()
	containers := make([]domain.Container, 0, len(rows))
	for _, row := range rows {
		containers = append(containers, domain.Container{
			URI:    row["uri"],
			ID:     row["id"],
			Name:   row["name"],
			Image:  row["image"],
			Status: domain.StatusRunning,
		})
	}
	return containers, nil
}

// ContainerByState resolves the container that docker:state back-references
// stateURI.
func (r *Registry) ContainerByState(ctx context.Context, stateURI string) (*domain.Container, error) {
	query := fmt.Sprintf(`%s
SELECT ?uri ?id ?name ?image ?status WHERE {
  GRAPH <%s> {
    ?uri a docker:Container ;
         docker:id ?id ;
         docker:name ?name ;
         docker:image ?image ;
         docker:state <%s> .
    <%s> docker:status ?status .
  }
} LIMIT 1`, prefixes, r.Graph, stateURI, stateURI)

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: container by state: %w", err)
	}
	rows := rs.Rows()
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &domain.Container{
		URI:    row["uri"],
		ID:     row["id"],
		Name:   row["name"],
		Image:  row["image"],
		Status: domain.ContainerStatus(row["status"]),
	}, nil
}

// IsEligible re-evaluates the eligibility predicate for a single container
// URI, reusing the operator filter fragment bound against that one URI via
// VALUES rather than duplicating the whole-set query.
func (r *Registry) IsEligible(ctx context.Context, containerURI string) (bool, error) {
	query := fmt.Sprintf(`%s
ASK {
  GRAPH <%s> {
    VALUES ?uri { <%s> }
    ?uri a docker:Container ;
         docker:state/docker:status "running" .
    %s
    FILTER NOT EXISTS { ?uri docker:label/docker:key "%s" }
  }
}`, prefixes, r.Graph, containerURI, r.Filter, networkMonitorLabel)

	ok, err := r.Client.Ask(ctx, query)
	if err != nil {
		return false, fmt.Errorf("sparql: is eligible: %w", err)
	}
	return ok, nil
}

// LabelValue looks up the value of label key on the container identified by
// its engine id.
func (r *Registry) LabelValue(ctx context.Context, containerID, key string) (string, error) {
	query := fmt.Sprintf(`%s
SELECT ?v WHERE {
  GRAPH <%s> {
    ?uri docker:id "%s" ;
         docker:label ?l .
    ?l docker:key "%s" ;
       docker:value ?v .
  }
} LIMIT 1`, prefixes, r.Graph, escapeLiteral(containerID), escapeLiteral(key))

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("sparql: label value: %w", err)
	}
	rows := rs.Rows()
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0]["v"], nil
}

// FindAll returns all Monitor records, optionally filtered by status. An
// empty status returns every record regardless of status.
func (r *Registry) FindAll(ctx context.Context, status domain.MonitorStatus) ([]domain.Monitor, error) {
	statusFilter := ""
	if status != "" {
		statusFilter = fmt.Sprintf(`FILTER(?status = "%s")`, escapeLiteral(string(status)))
	}
	query := fmt.Sprintf(`%s
SELECT ?uri ?id ?status ?dockerContainer WHERE {
  GRAPH <%s> {
    ?uri a logger:NetworkMonitor ;
         mu:uuid ?id ;
         logger:status ?status ;
         logger:monitors ?dockerContainer .
    %s
  }
}`, prefixes, r.Graph, statusFilter)

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: find all monitors: %w", err)
	}
	return rowsToMonitors(rs.Rows()), nil
}

// FindByLoggedContainer returns the unique running Monitor for a logged
// container's uri, or nil if none exists.
func (r *Registry) FindByLoggedContainer(ctx context.Context, containerURI string) (*domain.Monitor, error) {
	query := fmt.Sprintf(`%s
SELECT ?uri ?id ?status WHERE {
  GRAPH <%s> {
    ?uri a logger:NetworkMonitor ;
         mu:uuid ?id ;
         logger:status ?status ;
         logger:monitors <%s> .
    FILTER(?status = "%s")
  }
} LIMIT 1`, prefixes, r.Graph, containerURI, domain.MonitorRunning)

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: find by logged container: %w", err)
	}
	rows := rs.Rows()
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	m := &domain.Monitor{
		ID:              row["id"],
		URI:             row["uri"],
		Status:          domain.MonitorStatus(row["status"]),
		DockerContainer: containerURI,
		Persisted:       true,
	}
	return m, nil
}

// FindByMonitorHost returns the Monitor whose id equals the given container
// id, used when a change event concerns the companion itself.
func (r *Registry) FindByMonitorHost(ctx context.Context, containerID string) (*domain.Monitor, error) {
	query := fmt.Sprintf(`%s
SELECT ?uri ?status ?dockerContainer WHERE {
  GRAPH <%s> {
    ?uri a logger:NetworkMonitor ;
         mu:uuid "%s" ;
         logger:status ?status ;
         logger:monitors ?dockerContainer .
  }
} LIMIT 1`, prefixes, r.Graph, escapeLiteral(containerID))

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: find by monitor host: %w", err)
	}
	rows := rs.Rows()
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &domain.Monitor{
		ID:              containerID,
		URI:             row["uri"],
		Status:          domain.MonitorStatus(row["status"]),
		DockerContainer: row["dockerContainer"],
		Persisted:       true,
	}, nil
}

// GetLoggedContainer dereferences monitor.DockerContainer to a Container
// projection.
func (r *Registry) GetLoggedContainer(ctx context.Context, monitor domain.Monitor) (*domain.Container, error) {
	query := fmt.Sprintf(`%s
SELECT ?id ?name ?image ?status WHERE {
  GRAPH <%s> {
    <%s> a docker:Container ;
         docker:id ?id ;
         docker:name ?name ;
         docker:image ?image .
    OPTIONAL { <%s> docker:state/docker:status ?status }
  }
} LIMIT 1`, prefixes, r.Graph, monitor.DockerContainer, monitor.DockerContainer)

	rs, err := r.Client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sparql: get logged container: %w", err)
	}
	rows := rs.Rows()
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	status := domain.StatusNone
	if v, ok := row["status"]; ok && v != "" {
		status = domain.ContainerStatus(v)
	}
	return &domain.Container{
		URI:    monitor.DockerContainer,
		ID:     row["id"],
		Name:   row["name"],
		Image:  row["image"],
		Status: status,
	}, nil
}

// Save inserts monitor if it is not yet persisted, otherwise replaces the
// existing record keyed by uri: a DELETE of any prior fields for uri
// followed by an INSERT of the current ones, run as a single update so the
// registry's per-call consistency guarantee covers both halves.
func (r *Registry) Save(ctx context.Context, monitor *domain.Monitor) error {
	update := fmt.Sprintf(`%s
DELETE WHERE {
  GRAPH <%s> {
    <%s> a logger:NetworkMonitor ;
         mu:uuid ?i ;
         logger:status ?s ;
         logger:monitors ?d .
  }
};
INSERT DATA {
  GRAPH <%s> {
    <%s> a logger:NetworkMonitor ;
         mu:uuid "%s" ;
         logger:status "%s" ;
         logger:monitors <%s> .
  }
}`, prefixes, r.Graph, monitor.URI, r.Graph, monitor.URI,
		escapeLiteral(monitor.ID), escapeLiteral(string(monitor.Status)), monitor.DockerContainer)

	if err := r.Client.Update(ctx, update); err != nil {
		return fmt.Errorf("sparql: save monitor: %w", err)
	}
	monitor.Persisted = true
	return nil
}

// Remove deletes the Monitor record. Deleting a record that is already gone
// is a no-op under SPARQL's DELETE WHERE semantics, so this is naturally
// tolerant of "already removed".
func (r *Registry) Remove(ctx context.Context, monitor domain.Monitor) error {
	update := fmt.Sprintf(`%s
DELETE WHERE {
  GRAPH <%s> {
    <%s> ?p ?o .
  }
}`, prefixes, r.Graph, monitor.URI)

	if err := r.Client.Update(ctx, update); err != nil {
		return fmt.Errorf("sparql: remove monitor: %w", err)
	}
	return nil
}

func rowsToMonitors(rows []map[string]string) []domain.Monitor {
	monitors := make([]domain.Monitor, 0, len(rows))
	for _, row := range rows {
		monitors = append(monitors, domain.Monitor{
			ID:              row["id"],
			URI:             row["uri"],
			Status:          domain.MonitorStatus(row["status"]),
			DockerContainer: row["dockerContainer"],
			Persisted:       true,
		})
	}
	return monitors
}
