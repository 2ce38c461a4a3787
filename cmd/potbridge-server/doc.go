// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// potbridge-server serves a potential model over the binary compute
// protocol.
//
// It loads the Starlark model named by the configuration artifact (or
// the --model flag), binds the artifact's server address, and answers
// request frames until SIGINT or SIGTERM. One artifact can be shared
// verbatim between this server and the host-side bridge: the server
// reads the listen address and timeouts from the same fields the
// client dials and honors.
//
//	potbridge-server --config potbridge.yaml
//	potbridge-server --model ./zero.star --listen 127.0.0.1:12345
package main
