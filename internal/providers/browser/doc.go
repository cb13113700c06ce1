/*
Package browser models the host page that embeds playground widgets.

# Overview

A host page is parsed once into a Document (goquery over golang.org/x/net/html) and then
mutated in place as widgets are initialized and rendered. The package knows the container
contract and nothing about execution:

  - Containers carry the class "tiny-sandbox" and optionally an id.
  - Direct children with classes "sandbox-html", "sandbox-css" and "sandbox-js" hold the
    editable source text.
  - Each initialized container gains a run button, a syntax-error indicator, an isolation
    surface element (an iframe whose srcdoc holds the isolated document) and a console panel.
    These are created once and survive re-renders.

# Editor bridge

EditorBridge reads and writes the source fields by widget identity using XPath (htmlquery).
A missing field reads as empty text; that leniency is part of the contract.

# Threading

Document is not safe for concurrent use. Host pages confine it to their event loop.

Isolated execution lives in the sandbox subpackage.
*/
package browser
