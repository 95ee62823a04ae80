package jotform

import (
	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource(ConnectorName, NewSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        ConnectorName,
		Description: "Jotform forms, questions, submissions, reports, user history and folders",
		Version:     config.Version,
		Capabilities: []string{
			"incremental",
			"parent_child_streams",
			"response_cache",
		},
	})
}
