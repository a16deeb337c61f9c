/*

Process of compilation

IR Text ->
	parse ->
Intermediate Representation (ir) ->
	label (burs) ->
Minimal Cost Cover ->
	reduce (back) ->
NEANDER-X Assembly Text ->
	assemble (asm) ->
Memory Image ->
	run (vm)

*/
package compiler
