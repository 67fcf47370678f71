// Package strategy implements backend selection:
//
//   - Round Robin: walks the available backends with a cursor
//   - Least Connections: picks the backend with the fewest active connections,
//     earliest registered first on ties
//
// The Engine owns the active algorithm and resets the cursor on every switch.
// Selection only ever sees backends that are healthy and enabled.
package strategy
