package main

import (
	"encoding/json"
	"net/http"

	"regionsim/physics/internal/console"
)

// CommandDoc describes one console command for operators and tooling.
type CommandDoc struct {
	Command     string   `json:"cmd"`
	Fields      []string `json:"fields,omitempty"`
	Description string   `json:"description"`
	Scope       string   `json:"scope"`
	Example     string   `json:"example"`
}

var consoleCommandDocs = []CommandDoc{
	{
		Command:     console.CommandGet,
		Fields:      []string{"name"},
		Description: "Read the current value of one parameter.",
		Scope:       "read",
		Example:     `{"id":"1","cmd":"get","name":"Gravity"}`,
	},
	{
		Command:     console.CommandList,
		Description: "List every parameter with its description, value and default.",
		Scope:       "read",
		Example:     `{"id":"2","cmd":"list"}`,
	},
	{
		Command:     console.CommandSet,
		Fields:      []string{"name", "value", "target", "seq"},
		Description: "Change a parameter. Target is none (default only), all, or an object handle; object changes apply on the next step. Changes from one connection are spaced by the console tune interval.",
		Scope:       "tune",
		Example:     `{"id":"3","cmd":"set","name":"DefaultFriction","value":0.5,"target":"all"}`,
	},
	{
		Command:     console.CommandStats,
		Description: "Report the counters of the most recent simulation step and the console drop counters.",
		Scope:       "read",
		Example:     `{"id":"4","cmd":"stats"}`,
	},
}

// registerConsoleDocEndpoint serves the console command reference as JSON.
func registerConsoleDocEndpoint(mux *http.ServeMux) {
	mux.HandleFunc("/console/commands", func(w http.ResponseWriter, r *http.Request) {
		docs := append([]CommandDoc(nil), consoleCommandDocs...)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
