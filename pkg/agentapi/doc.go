/*
Package agentapi implements C7, the coordinator-side half of the agent
protocol: four bearer-token-authenticated JSON endpoints over plain
net/http.

# Architecture

	┌────────────────────── AGENT API ──────────────────────┐
	│                                                        │
	│  GET  /agent-api/config             -> agent name, cfg │
	│  GET  /agent-api/next-experiment    -> Registry.Next   │
	│  POST /agent-api/record-result      -> Results.Put     │
	│  POST /agent-api/complete-experiment-> Registry.Complete│
	│                                        + Report.Enqueue│
	│                                                        │
	│  every request: Authorization: Bearer <token>          │
	│                 -> TokenManager.Validate -> agent name │
	└────────────────────────────────────────────────────────┘

Grounded on the teacher's pkg/api/health.go (ServeMux + JSON struct + timed
http.Server) for the server shape, and pkg/manager/token.go for the
token lifecycle (pkg/agentapi/token.go), since the teacher's actual
agent-facing surface is gRPC and depends on a proto package this
repository never retrieves.
*/
package agentapi
