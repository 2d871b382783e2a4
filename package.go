// Comfybatch drives a ComfyUI server through its HTTP and websocket API: it queues
// API-format workflows, follows their execution over a single websocket connection,
// downloads the images each output node produced and stitches them into composites.
//
// The client package holds the protocol, graphapi the workflow model, compose the
// image assembly, config the batch and environment settings and runner the job loop
// tying them together.
package comfybatch
