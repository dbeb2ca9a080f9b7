// Package devserver is an in-memory development backend for SRRT.
//
// It serves a lease authority, a topic hub for live connections and a
// relay health endpoint:
//
//	POST /api/lease
//	    Issue a lease for {purpose, graph, local_peer, remote_peer}. The same
//	    tuple receives the same lease until it expires.
//
//	GET /ws/glyphnet?topic=&graph=&token=&conn_id=
//	GET /radio/ws/glyphnet?...
//	    Subscribe to topic. Every JSON object received is fanned out to all
//	    subscribers of the topic, the sender included, with
//	    meta.origin_conn_id stamped when missing. Pings are answered with a
//	    pong to the sender only.
//
//	GET /radio/health
//	    200 while the relay is marked healthy, 503 otherwise.
//
//	PUT /radio/health {"healthy": bool}
//	    Flip the relay health.
//
// All state is held in memory and lost on exit. It is meant for local use
// and tests only.
package devserver
