package dts_test

import (
	"testing"

	"tsblank/pkg/dts"
	"tsblank/pkg/frontend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emit(t *testing.T, src string) (string, []dts.Diagnostic) {
	t.Helper()
	f, err := frontend.Parse("input.ts", []byte(src))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return dts.Emit(f.Root(), f.Text)
}

func TestDeclarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "function",
			src:  "export function add(a: number, b = 1): number { return a + b }\n",
			want: "export declare function add(a: number, b?: number): number;\n",
		},
		{
			name: "variables",
			src:  "export const a = 1;\nexport let b = \"x\";\nexport const c: string[] = [];\n",
			want: "export declare const a = 1;\nexport declare let b: string;\nexport declare const c: string[];\n",
		},
		{
			name: "types",
			src:  "export interface A { x: number }\ntype B = string;\n",
			want: "export interface A { x: number }\ntype B = string;\nexport {};\n",
		},
		{
			name: "script",
			src:  "function hello(name: string): string { return name }\nconst x = 1;\n",
			want: "declare function hello(name: string): string;\ndeclare const x = 1;\n",
		},
		{
			name: "jsdoc",
			src:  "/** Adds. */\nexport function f(): void {}\n",
			want: "/** Adds. */\nexport declare function f(): void;\n",
		},
		{
			name: "enum",
			src:  "export enum Color { Red, Green }\n",
			want: "export declare enum Color { Red, Green }\n",
		},
		{
			name: "re-exports",
			src:  "export { a } from \"./a\";\nexport * from \"./b\";\n",
			want: "export { a } from \"./a\";\nexport * from \"./b\";\n",
		},
		{
			name: "overloads",
			src: "export function f(a: string): string;\n" +
				"export function f(a: number): number;\n" +
				"export function f(a: any): any { return a }\n",
			want: "export declare function f(a: string): string;\n" +
				"export declare function f(a: number): number;\n",
		},
		{
			name: "local re-exported",
			src:  "function helper(): void {}\nfunction hidden() {}\nexport { helper };\n",
			want: "declare function helper(): void;\nexport { helper };\nexport {};\n",
		},
		{
			name: "arrow function",
			src:  "export const inc = (n: number): number => n + 1;\n",
			want: "export declare const inc: (n: number) => number;\n",
		},
		{
			name: "class",
			src: "export class Point {\n" +
				"  #secret = 1;\n" +
				"  private cache = new Map();\n" +
				"  static origin: Point;\n" +
				"  constructor(public x: number, readonly y: number) {}\n" +
				"  get length(): number { return 0 }\n" +
				"  move(dx: number): Point { return this }\n" +
				"}\n",
			want: "export declare class Point {\n" +
				"    #private;\n" +
				"    private cache;\n" +
				"    static origin: Point;\n" +
				"    constructor(x: number, y: number);\n" +
				"    public x: number;\n" +
				"    readonly y: number;\n" +
				"    get length(): number;\n" +
				"    move(dx: number): Point;\n" +
				"}\n",
		},
		{
			name: "default function",
			src:  "export default function (x: number): void {}\n",
			want: "export default function (x: number): void;\n",
		},
		{
			name: "default arrow",
			src:  "export default (x: number): number => x;\n",
			want: "declare const _default: (x: number) => number;\nexport default _default;\n",
		},
		{
			name: "protected constructor",
			src: "export abstract class B<T> {\n" +
				"  protected constructor() {}\n" +
				"  abstract get(): T;\n" +
				"}\n",
			want: "export declare abstract class B<T> {\n" +
				"    protected constructor();\n" +
				"    abstract get(): T;\n" +
				"}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diags := emit(t, tt.src)
			require.Empty(t, diags)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{"missing return type", "export function f(a: number) { return a }\n", "function f must have an explicit return type annotation"},
		{"missing parameter type", "export function f(a): void {}\n", "parameter a must have an explicit type annotation"},
		{"inferred variable", "export const m = new Map();\n", "variable m must have an explicit type annotation"},
		{"default expression", "export default 1 + 2;\n", "default exports must be an identifier or have an explicit type"},
		{"syntax error", "export const = ;\n", "file has syntax errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := emit(t, tt.src)
			require.NotEmpty(t, diags)
			assert.Equal(t, tt.message, diags[0].Message)
		})
	}
}

func TestUnexportedValuesNeedNoTypes(t *testing.T) {
	got, diags := emit(t, "const cache = new Map();\nexport function get(key: string): unknown { return cache.get(key) }\n")
	assert.Empty(t, diags)
	assert.Equal(t, "export declare function get(key: string): unknown;\n", got)
}
