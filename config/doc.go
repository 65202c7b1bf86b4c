// Package config loads YAML files describing the server, logging, models
// and the agent tree, and builds that tree.
//
// Example file:
//
//	server:
//	  addr: ":8080"
//	  rateLimit: {requestsPerSecond: 5, burst: 10}
//	models:
//	  fast:
//	    provider: openai
//	    model: gpt-4o-mini
//	    apiKey: ${OPENAI_API_KEY}
//	agents:
//	  - name: invoices
//	    model: fast
//	    capabilitySummary: Invoice questions and payment status
//	  - name: billing
//	    type: router
//	    model: fast
//	    capabilitySummary: Everything about billing
//	    subAgents: [invoices]
//	    confidenceThreshold: 0.7
//
// References are checked by Validate; Build additionally rejects router
// cycles with ErrCycle.
package config
