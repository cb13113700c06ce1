/*
Package sandbox runs playground widgets in isolated JavaScript surfaces.

# Overview

Each widget owns one Surface. Rendering builds an isolated document from the widget's HTML,
CSS and JS fragments (BuildDocument) and loads it into the surface, replacing whatever ran
before. Loading parses the document with goquery and runs its script blocks in a fresh goja
VM, so no state leaks between renders or between widgets.

# Isolated environment

Scripts see:

  - window and self, aliases of the global object
  - console, the surface's own console (logged at debug level, never shown to the user)
  - document, a small DOM over the parsed body (querySelector, getElementById, ...)
  - window.parent.tinySandbox, the only channel back to the host:
    logger(id) returns the widget's forwarder and success(id) reports completion

require, process, module and exports are removed. Timers are accepted and never fire.

# Signals

The generated script passes logger(id) to the user code as its console binding and calls
success(id) when the code finishes, thrown or not. Forwarded lines, the completion signal and
the load event are delivered through a Dispatcher onto the host loop. Signals from a
superseded load, or naming another widget, are dropped.

# Usage Example

	runner := sandbox.NewRunner(sandbox.New(cfg, logger), registry, loop.Dispatch, onConsole, logger)

	// on the host loop
	runner.Render(wid, sandbox.Fragments{JS: "console.log(1+1)"}, func(wid id.WidgetID, r *sandbox.Result) {
		showIndicator(wid, registry.HasFailedOutcome(wid))
	})
*/
package sandbox
