// Package policy provides the command sources an evaluation can be driven by.
//
// BaselineReplay reproduces the historical operation. Heuristic is a
// deterministic rule-based controller built from an inflow forecast, cheap
// price windows and level bands. HTTPDecider delegates each decision to an
// external service, and Func adapts a plain function. All of them implement
// sim.CommandSource.
package policy
